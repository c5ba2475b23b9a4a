package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-triage/internal/imaging"
	"github.com/kozaktomas/photo-triage/internal/quality"
)

var assessCmd = &cobra.Command{
	Use:   "assess <file>...",
	Short: "Check photos for blur and bad exposure",
	Long: `Run the quality detectors on individual photos and print the verdict
with the measured metrics. Nothing is embedded, indexed or cataloged.

Examples:
  photo-triage assess IMG_0001.jpg
  photo-triage assess *.png --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().Bool("json", false, "Output as JSON")
}

// AssessOutput is the per-file result printed by the assess command.
type AssessOutput struct {
	File   string          `json:"file"`
	Format string          `json:"format,omitempty"`
	Result *quality.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine := quality.NewEngine(cfg.Quality)

	outputs := make([]AssessOutput, 0, len(args))
	failed := 0
	for _, path := range args {
		out := assessFile(engine, path)
		if out.Error != "" {
			failed++
		}
		outputs = append(outputs, out)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		for _, out := range outputs {
			printAssessOutput(out)
		}
	}

	if failed == len(args) {
		return fmt.Errorf("no photo could be assessed")
	}
	return nil
}

func assessFile(engine *quality.Engine, path string) AssessOutput {
	out := AssessOutput{File: path}
	img, format, err := imaging.DecodeFile(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	res := engine.Assess(img)
	out.Format = format
	out.Result = &res
	return out
}

func printAssessOutput(out AssessOutput) {
	name := filepath.Base(out.File)
	if out.Error != "" {
		fmt.Printf("%s: error: %s\n", name, out.Error)
		return
	}

	verdict := "OK"
	if out.Result.IsDefective {
		defects := make([]string, len(out.Result.DefectTypes))
		for i, d := range out.Result.DefectTypes {
			defects[i] = string(d)
		}
		verdict = "DEFECTIVE (" + strings.Join(defects, ", ") + ")"
	}
	fmt.Printf("%s: %s\n", name, verdict)

	keys := make([]string, 0, len(out.Result.Metrics))
	for k := range out.Result.Metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Printf("  %-22s %.4f\n", k, out.Result.Metrics[k])
	}
}
