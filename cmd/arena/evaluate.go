package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"model-arena/internal/eval"
	"model-arena/internal/metrics"
	"model-arena/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newEvaluateCommand() *cobra.Command {
	var noArchive bool
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run every discovered model against the test season and report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			registry := prometheus.NewRegistry()
			arena, err := a.newArena(metrics.NewRecorder(metrics.NewWithRegistry(registry)))
			if err != nil {
				return cliError{code: exitFatal, err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := arena.Run(ctx)
			if err != nil {
				return cliError{code: exitFatal, err: err}
			}

			report.PrintSummary(cmd.OutOrStdout(), rep)

			runDir, err := report.NewWriter(a.settings.OutputDir).Write(rep)
			if err != nil {
				return err
			}
			log.Info().Str("dir", runDir).Msg("Report files written")

			if !noArchive {
				if err := archiveReport(a, rep); err != nil {
					return err
				}
			}

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
					return err
				}
			}

			if rep.NoUsableModels {
				log.Warn().
					Str("run_id", rep.RunID).
					Int("failed", len(rep.Failures)).
					Msg("No usable models in this run")
			}
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Directory for report files")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not archive the report in the arena store")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

// addRunFlags declares the flags shared by commands that run evaluations.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("models", "m", "", "Models directory")
	cmd.Flags().String("filter", "", "CEL expression over name, location and kind selecting models")
	cmd.Flags().StringP("dataset", "d", "", "Dataset path: a .csv file or an arena store")
	cmd.Flags().String("format", "", "Dataset format: csv, boltdb or auto")
	cmd.Flags().Int("test-from-year", 0, "First season of the test partition")
	cmd.Flags().IntP("parallel", "p", 0, "Models evaluated concurrently")
	cmd.Flags().Int("bins", 0, "Calibration bins")
	cmd.Flags().Duration("timeout", 0, "Per-model load and predict timeout")
}

func archiveReport(a *app, rep *eval.Report) error {
	store, err := a.archive()
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	start := time.Now()
	if err := store.SaveReport(rep); err != nil {
		return err
	}
	log.Info().
		Str("run_id", rep.RunID).
		Dur("elapsed", time.Since(start)).
		Msg("Report archived")
	return nil
}
