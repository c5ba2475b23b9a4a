package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find indexed photos matching a text description",
	Long: `Search the indexed photos with a natural-language query. Results are
ranked by cosine similarity between the query embedding and the photo
embeddings.

Examples:
  photo-triage search "dog on the beach"
  photo-triage search "sunset over mountains" --limit 5 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("limit", 0, "Maximum number of results (default SEARCH_LIMIT)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, log, processing.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("failed to close backend")
		}
	}()

	results, err := b.orch.Search(ctx, query, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No matching photos.")
		return nil
	}
	fmt.Printf("Results for %q:\n\n", query)
	fmt.Printf("%-4s %-10s %s\n", "#", "SCORE", "PATH")
	for _, r := range results {
		fmt.Printf("%-4d %-10.4f %s\n", r.Rank, r.Similarity, r.Path)
	}
	return nil
}
