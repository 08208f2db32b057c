package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			list []*models.Job
			err  error
		)
		if jobsStatus != "" {
			list, err = app.jobs.ListByStatus(cmd.Context(), models.JobStatus(jobsStatus), jobsLimit)
		} else {
			list, err = app.jobs.ListRecent(cmd.Context(), jobsLimit)
		}
		if err != nil {
			return err
		}

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCREATED\tFILE")
		for _, j := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n", j.ID, j.Status, j.Progress, j.CreatedAt.Format("2006-01-02 15:04:05"), j.FilePath)
		}
		return tw.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show [job id]",
	Short: "Show a job and its stored plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		job, err := app.jobs.GetByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		raw, err := app.jobs.GetPlan(cmd.Context(), id)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		out := struct {
			Job  *models.Job     `json:"job"`
			Plan json.RawMessage `json:"plan,omitempty"`
		}{Job: job, Plan: raw}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete [job id]",
	Short: "Delete a job and its skip ranges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		if err := app.jobs.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "only jobs in this status")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}
