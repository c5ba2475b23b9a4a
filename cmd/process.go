package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/processing"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

var processCmd = &cobra.Command{
	Use:   "process <folder>",
	Short: "Assess and index the photos of a folder",
	Long: `Assess every photo directly inside a folder, flag defective ones and
index the qualified ones for search. Photos already indexed with the same
content are skipped unless --force is given. Catalog entries of photos that
disappeared from the folder are pruned.

Examples:
  photo-triage process ~/Pictures/2024-trip
  photo-triage process ./photos --workers 4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("force", false, "Re-embed photos that are already indexed")
	processCmd.Flags().Int("workers", 0, "Parallel photo workers (overrides MAX_WORKERS)")
	processCmd.Flags().Int("batch-size", 0, "Photos written to the index per batch (overrides BATCH_SIZE)")
	processCmd.Flags().Bool("json", false, "Print the task snapshot as JSON")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	opts := processing.OptionsFromConfig(cfg)
	applyPoolFlags(cmd, &opts.MaxWorkers, &opts.BatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("failed to close backend")
		}
	}()

	id, err := b.orch.Submit(ctx, args[0], processing.SubmitOptions{Force: mustGetBool(cmd, "force")})
	if err != nil {
		return err
	}
	task, events, unsubscribe, err := b.orch.Subscribe(id)
	if err != nil {
		return err
	}
	defer unsubscribe()

	snap := task.Snapshot()
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Processing %d photos in %s\n", snap.Total, snap.Folder)
		bar = progressbar.NewOptions(snap.Total,
			progressbar.OptionSetDescription("Processing photos"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	cancelled := false
	for done := false; !done; {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				_ = b.orch.Cancel(id)
				if !jsonOutput {
					fmt.Println("\nCancelling, waiting for in-flight photos...")
				}
			}
			// keep draining until the task settles
			ctx = context.Background()
		case ev := <-events:
			if bar != nil && ev.Type == "progress" {
				if data, ok := ev.Data.(map[string]int); ok {
					_ = bar.Set(data["processed"])
				}
			}
		case <-task.Done():
			done = true
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	snap = task.Snapshot()
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		printTaskSummary(snap)
	}

	if snap.Status == processing.StatusFailed {
		return fmt.Errorf("task failed: %s", snap.Message)
	}
	return nil
}

func printTaskSummary(snap processing.TaskSnapshot) {
	fmt.Printf("Status: %s\n", snap.Status)
	if snap.Message != "" {
		fmt.Printf("  %s\n", snap.Message)
	}
	r := snap.Result
	if r == nil {
		return
	}

	fmt.Printf("Total:      %d\n", r.TotalPhotos)
	fmt.Printf("Qualified:  %d\n", r.QualifiedPhotos)
	fmt.Printf("Defective:  %d\n", r.BadPhotos)
	fmt.Printf("Indexed:    %d (skipped %d unchanged)\n", r.IndexedPhotos, r.SkippedPhotos)
	if r.PrunedPhotos > 0 {
		fmt.Printf("Pruned:     %d\n", r.PrunedPhotos)
	}
	if r.FailedPhotos+r.EmbeddingErrors+r.IndexErrors > 0 {
		fmt.Printf("Errors:     %d decode, %d embedding, %d index\n", r.FailedPhotos, r.EmbeddingErrors, r.IndexErrors)
	}

	defects := make([]quality.DefectType, 0, len(r.DefectCounts))
	for d := range r.DefectCounts {
		defects = append(defects, d)
	}
	slices.Sort(defects)
	for _, d := range defects {
		fmt.Printf("  %-13s %d\n", d+":", r.DefectCounts[d])
	}

	for _, f := range r.Failures {
		fmt.Printf("  ! %s [%s]: %s\n", f.PhotoID, f.Stage, f.Error)
	}
	fmt.Printf("Took %dms\n", r.DurationMS)
}
