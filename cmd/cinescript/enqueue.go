package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JustinTDCT/cinescript/internal/jobs"
	"github.com/JustinTDCT/cinescript/internal/logging"
)

var enqueueForce bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [video file...]",
	Short: "Create jobs for files and queue them for the worker",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		queue := jobs.NewQueue(app.cfg.RedisAddr, 1, logging.WithComponent("queue"))
		defer queue.Stop()
		intake := jobs.NewIntake(app.jobs, queue, logging.WithComponent("intake"))

		out := cmd.OutOrStdout()
		for _, arg := range args {
			path, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			job, created, err := intake.Submit(cmd.Context(), path, jobs.OriginCLI, enqueueForce)
			if err != nil {
				return err
			}
			state := "queued"
			if !created {
				state = "exists (" + string(job.Status) + ")"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", job.ID, state, path)
		}
		return nil
	},
}

func init() {
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "create a new job even if the file already has one")
}
