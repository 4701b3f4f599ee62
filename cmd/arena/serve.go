package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"model-arena/internal/dashboard"
	"model-arena/internal/eval"
	"model-arena/internal/metrics"
	"model-arena/internal/registry"
	"model-arena/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var watch, runOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the leaderboard dashboard and trigger runs on demand",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.archive()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("serve needs a data path for the run archive")
			}

			m := metrics.New()
			recorder := metrics.NewRecorder(m)
			run := func(ctx context.Context, progress func(eval.Progress)) (*eval.Report, error) {
				arena, err := a.newArena(recorder)
				if err != nil {
					// No run started, so only the fatal counter moves.
					m.FatalErrors.WithLabelValues(metrics.FatalKind(err)).Inc()
					return nil, err
				}
				return arena.OnProgress(progress).Run(ctx)
			}

			srv := dashboard.NewServer(run, store, dashboard.Options{
				Port:     a.settings.DashboardPort,
				Gatherer: prometheus.DefaultGatherer,
				Reports:  report.NewWriter(a.settings.OutputDir),
			})
			if err := srv.Start(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				w, err := registry.NewWatcher(a.settings.ModelsDir, registry.DefaultDebounce)
				if err != nil {
					srv.Stop()
					return err
				}
				go func() {
					err := w.Run(ctx, func(paths []string) {
						log.Info().Int("changed", len(paths)).Msg("Re-evaluating after model change")
						srv.Refresh()
					})
					if err != nil {
						log.Error().Err(err).Msg("Model watcher stopped")
					}
				}()
			}

			if runOnStart {
				srv.Trigger()
			}

			<-ctx.Done()
			log.Info().Msg("Shutdown signal received")
			return srv.Stop()
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Int("port", 0, "Dashboard port")
	cmd.Flags().StringP("output", "o", "", "Directory for report files")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-evaluate when the models directory changes")
	cmd.Flags().BoolVar(&runOnStart, "run", false, "Start a run immediately")
	return cmd
}
