package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JustinTDCT/cinescript/internal/analysis"
	"github.com/JustinTDCT/cinescript/internal/jobs"
	"github.com/JustinTDCT/cinescript/internal/logging"
	"github.com/JustinTDCT/cinescript/internal/models"
)

var (
	analyzeJobID string
	analyzeOut   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video file]",
	Short: "Analyze a file in-process and print its plan",
	Long:  "Runs the full analysis without the queue. With --job an existing job is re-run, picking up skip ranges added since.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var job *models.Job
		switch {
		case analyzeJobID != "":
			id, err := parseID("job", analyzeJobID)
			if err != nil {
				return err
			}
			if job, err = app.jobs.GetByID(ctx, id); err != nil {
				return err
			}
			if job.Status == models.JobCompleted || job.Status == models.JobCancelled {
				job.Status = models.JobPending
			}
		case len(args) == 1:
			job = models.NewJob(args[0])
			if err := app.jobs.Create(ctx, job); err != nil {
				return err
			}
		default:
			return cmd.Usage()
		}

		analyzer, err := app.newAnalyzer(analysis.WithProgress(app.reportProgress))
		if err != nil {
			return err
		}
		handler := jobs.NewAnalyzeHandler(app.jobs, analyzer, logging.WithComponent("jobs"))

		// An interrupt here is the user stopping the job, not a worker restart.
		runCtx, abort := context.WithCancelCause(context.WithoutCancel(ctx))
		defer abort(nil)
		stop := context.AfterFunc(ctx, func() { abort(jobs.ErrAborted) })
		defer stop()

		plan, err := handler.Analyze(runCtx, job)
		if err != nil {
			return err
		}

		log.Info().
			Str("job_id", job.ID.String()).
			Int("windows", len(plan.Windows)).
			Int("exclusions", len(plan.Timeline.Entries)).
			Float64("excluded_seconds", plan.Timeline.TotalDuration()).
			Msg("analysis complete")
		return writeJSONFile(cmd.OutOrStdout(), analyzeOut, plan)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeJobID, "job", "", "re-run an existing job instead of creating one")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write the plan to this file instead of stdout")
}
