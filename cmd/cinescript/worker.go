package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JustinTDCT/cinescript/internal/analysis"
	"github.com/JustinTDCT/cinescript/internal/jobs"
	"github.com/JustinTDCT/cinescript/internal/logging"
	"github.com/JustinTDCT/cinescript/internal/metrics"
	"github.com/JustinTDCT/cinescript/internal/scheduler"
	"github.com/JustinTDCT/cinescript/internal/version"
	"github.com/JustinTDCT/cinescript/internal/watcher"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued analysis jobs",
	Long:  "Runs the queue worker, the pending-job sweep, the metrics endpoint and, when enabled, the video directory watcher.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := app.cfg
		log.Info().Str("version", version.Load().Version).Msg("cinescript worker starting")

		analyzer, err := app.newAnalyzer(analysis.WithProgress(app.reportProgress))
		if err != nil {
			return err
		}

		queue := jobs.NewQueue(cfg.RedisAddr, cfg.WorkerConcurrency, logging.WithComponent("queue"))
		defer queue.Stop()
		handler := jobs.NewAnalyzeHandler(app.jobs, analyzer, logging.WithComponent("jobs"))
		jobs.RegisterHandlers(queue, handler)
		if err := queue.Start(); err != nil {
			return err
		}

		sweep, err := scheduler.New(cfg.SweepSchedule, cfg.SweepRate, app.jobs, queue, logging.WithComponent("scheduler"),
			scheduler.WithStaleAfter(time.Duration(cfg.StaleJobMinutes)*time.Minute))
		if err != nil {
			return err
		}
		sweep.Start()
		defer sweep.Stop()

		if cfg.WatchEnabled && cfg.VideoDir != "" {
			intake := jobs.NewIntake(app.jobs, queue, logging.WithComponent("intake"))
			w, err := watcher.New(cfg.VideoDir, func(path string) {
				if _, _, err := intake.Submit(ctx, path, jobs.OriginWatcher, false); err != nil {
					log.Error().Err(err).Str("file", path).Msg("submitting watched file")
				}
			}, logging.WithComponent("watcher"))
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
		}

		var metricsSrv interface{ Shutdown(context.Context) error }
		if cfg.MetricsPort > 0 {
			metricsSrv = metrics.StartServer(cfg.MetricsPort, logging.WithComponent("metrics"))
		}

		<-ctx.Done()
		log.Info().Msg("shutting down...")
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	},
}

func (a *App) reportProgress(jobID uuid.UUID, pct int) {
	if err := a.jobs.UpdateProgress(context.Background(), jobID, pct); err != nil {
		log.Warn().Err(err).Str("job_id", jobID.String()).Msg("updating progress")
	}
}
