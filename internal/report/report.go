// Package report writes evaluation reports to disk and to the terminal.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"model-arena/internal/eval"

	"github.com/rs/zerolog/log"
)

// Files written for every run, relative to the run directory.
const (
	SummaryFile     = "summary.txt"
	LeaderboardFile = "leaderboard.csv"
	ROCFile         = "roc_curves.csv"
	CalibrationFile = "calibration.csv"
	ConfusionFile   = "confusion_matrices.csv"
	JSONFile        = "report.json"
)

// Writer generates report files under an output directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// Write generates every report format into outputDir/<run-id> and returns
// that directory.
func (w *Writer) Write(r *eval.Report) (string, error) {
	runDir := w.outputDir
	if r.RunID != "" {
		runDir = filepath.Join(w.outputDir, r.RunID)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []struct {
		file string
		gen  func(path string, r *eval.Report) error
	}{
		{SummaryFile, generateSummary},
		{LeaderboardFile, generateLeaderboard},
		{ROCFile, generateROC},
		{CalibrationFile, generateCalibration},
		{ConfusionFile, generateConfusion},
		{JSONFile, generateJSON},
	}
	for _, s := range steps {
		path := filepath.Join(runDir, s.file)
		if err := s.gen(path, r); err != nil {
			return "", err
		}
		log.Info().Str("file", path).Msg("Report generated")
	}
	return runDir, nil
}

// PrintSummary writes the human-readable summary to w.
func PrintSummary(w io.Writer, r *eval.Report) {
	writeSummary(w, r)
}

func writeSummary(w io.Writer, r *eval.Report) {
	fmt.Fprintf(w, "MODEL ARENA RESULTS\n")
	fmt.Fprintf(w, "===================\n\n")
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID)
	}
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Test Set: %d matches, %.1f%% positive\n", r.TestSize, r.PositiveRate*100)
	fmt.Fprintf(w, "Majority Baseline Accuracy: %.4f\n\n", r.BaselineAccuracy)

	fmt.Fprintf(w, "LEADERBOARD\n")
	fmt.Fprintf(w, "-----------\n")
	if r.NoUsableModels {
		fmt.Fprintf(w, "No usable models: every discovered model failed or none were found.\n")
	} else {
		fmt.Fprintf(w, "%-4s %-24s %8s %9s %8s %8s %8s\n", "Rank", "Model", "Accuracy", "Precision", "Recall", "F1", "ROC-AUC")
		for _, e := range r.Leaderboard {
			auc := fmt.Sprintf("%8.4f", e.Metrics.ROCAUC)
			if !e.Metrics.HasScores {
				auc = fmt.Sprintf("%7.4f*", e.Metrics.ROCAUC)
			}
			fmt.Fprintf(w, "%-4d %-24s %8.4f %9.4f %8.4f %8.4f %s\n",
				e.Rank, e.Model, e.Metrics.Accuracy, e.Metrics.Precision,
				e.Metrics.Recall, e.Metrics.F1, auc)
		}
		fmt.Fprintf(w, "* model has no scores; ROC-AUC is the 0.5 sentinel\n")
	}

	if len(r.Best) > 0 {
		fmt.Fprintf(w, "\nBEST BY METRIC\n")
		fmt.Fprintf(w, "--------------\n")
		for _, metric := range eval.BestMetrics {
			if model, ok := r.Best[metric]; ok {
				fmt.Fprintf(w, "%-10s %s\n", metric, model)
			}
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFAILURES\n")
		fmt.Fprintf(w, "--------\n")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "%s [%s]: %s\n", f.Model, f.Kind, f.Description)
		}
	}
}

func generateSummary(path string, r *eval.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writeSummary(file, r)
	return nil
}

// writeCSV creates path and writes header then rows.
func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func num(v float64) string { return fmt.Sprintf("%.6f", v) }

func generateLeaderboard(path string, r *eval.Report) error {
	rows := make([][]string, 0, len(r.Leaderboard))
	for _, e := range r.Leaderboard {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Rank),
			e.Model,
			e.Kind,
			num(e.Metrics.Accuracy),
			num(e.Metrics.Precision),
			num(e.Metrics.Recall),
			num(e.Metrics.F1),
			num(e.Metrics.ROCAUC),
			fmt.Sprintf("%t", e.Metrics.HasScores),
			fmt.Sprintf("%d", e.Duration.Milliseconds()),
		})
	}
	return writeCSV(path, []string{
		"Rank", "Model", "Kind", "Accuracy", "Precision", "Recall", "F1", "ROC AUC", "Has Scores", "Duration ms",
	}, rows)
}

// Curve files iterate in leaderboard order so output is deterministic.

func generateROC(path string, r *eval.Report) error {
	var rows [][]string
	for _, e := range r.Leaderboard {
		for _, p := range r.Curves[e.Model].ROC {
			rows = append(rows, []string{e.Model, num(p.Threshold), num(p.FPR), num(p.TPR)})
		}
	}
	return writeCSV(path, []string{"Model", "Threshold", "FPR", "TPR"}, rows)
}

func generateCalibration(path string, r *eval.Report) error {
	var rows [][]string
	for _, e := range r.Leaderboard {
		for _, p := range r.Curves[e.Model].Calibration {
			rows = append(rows, []string{
				e.Model, num(p.Lower), num(p.Upper), num(p.MeanPredicted), num(p.ObservedFrequency),
				fmt.Sprintf("%d", p.Count),
			})
		}
	}
	return writeCSV(path, []string{"Model", "Bin Lower", "Bin Upper", "Mean Predicted", "Observed Frequency", "Count"}, rows)
}

func generateConfusion(path string, r *eval.Report) error {
	rows := make([][]string, 0, len(r.Leaderboard))
	for _, e := range r.Leaderboard {
		cm := r.Curves[e.Model].Confusion
		rows = append(rows, []string{
			e.Model,
			fmt.Sprintf("%d", cm.TN()),
			fmt.Sprintf("%d", cm.FP()),
			fmt.Sprintf("%d", cm.FN()),
			fmt.Sprintf("%d", cm.TP()),
		})
	}
	return writeCSV(path, []string{"Model", "TN", "FP", "FN", "TP"}, rows)
}

func generateJSON(path string, r *eval.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}
