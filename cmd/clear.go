package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every catalog entry and indexed vector",
	Long: `Wipe the photo catalog and the vector index. The photos on disk are
not touched; run process again to rebuild the index.

Example:
  photo-triage clear --yes`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := openBackend(cmd.Context(), cfg, log, processing.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("failed to close backend")
		}
	}()

	stats := b.orch.CatalogStats()
	if stats.Total == 0 {
		fmt.Println("Catalog is already empty.")
		return nil
	}

	if !mustGetBool(cmd, "yes") && !confirmAction(fmt.Sprintf("Remove %d cataloged photo(s) and %d indexed vector(s)? [y/N]: ", stats.Total, stats.Indexed)) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := b.orch.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}
	fmt.Printf("Done! Removed %d photo(s) from the catalog\n", stats.Total)
	return nil
}
