package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/processing"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List cataloged photos",
	Long: `List the photos recorded by previous processing runs with their quality
verdict and index status.

Examples:
  photo-triage catalog
  photo-triage catalog --filter defective --defect blur
  photo-triage catalog --filter qualified --json`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().String("filter", "all", "Entries to show: all, qualified or defective")
	catalogCmd.Flags().StringSlice("defect", nil, "Only show entries with these defects (blur, overexposed, underexposed or a custom detector)")
	catalogCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCatalog(cmd *cobra.Command, args []string) error {
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

	filter, err := catalog.ParseFilter(mustGetString(cmd, "filter"), mustGetStringSlice(cmd, "defect"), b.orch.DefectTypes())
	if err != nil {
		return err
	}
	entries := b.orch.Catalog(filter)

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No cataloged photos.")
		return nil
	}
	for _, e := range entries {
		status := "ok"
		if e.Quality.IsDefective {
			defects := make([]string, len(e.Quality.DefectTypes))
			for i, d := range e.Quality.DefectTypes {
				defects[i] = string(d)
			}
			status = strings.Join(defects, ",")
		} else if e.Indexed {
			status = "indexed"
		}
		fmt.Printf("%-30s %s\n", status, e.PhotoID)
	}

	stats := b.orch.CatalogStats()
	fmt.Printf("\nTotal: %d (qualified %d, defective %d, indexed %d)\n",
		stats.Total, stats.Qualified, stats.Defective, stats.Indexed)
	return nil
}
