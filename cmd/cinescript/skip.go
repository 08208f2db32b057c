package main

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

var (
	skipReason string
	skipStart  string
	skipEnd    string
	skipJSON   bool
)

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Manage manual skip ranges of a job",
}

func parseSeconds(name, s string) (float64, error) {
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, apperrors.InvalidRange("%s %q is not a number of seconds", name, s)
	}
	return f, nil
}

func reasonFlag(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("reason") {
		return nil
	}
	r := skipReason
	return &r
}

var skipAddCmd = &cobra.Command{
	Use:   "add [job id] [start] [end]",
	Short: "Add a range that is never transcribed",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		start, err := parseSeconds("start", args[1])
		if err != nil {
			return err
		}
		end, err := parseSeconds("end", args[2])
		if err != nil {
			return err
		}
		sr, err := app.ranges.Add(cmd.Context(), jobID, models.TimeInterval{Start: start, End: end}, reasonFlag(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sr.ID)
		return nil
	},
}

var skipListCmd = &cobra.Command{
	Use:   "list [job id]",
	Short: "List a job's skip ranges by start time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		ranges, err := app.ranges.List(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		if skipJSON {
			return writeJSON(cmd.OutOrStdout(), ranges)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tSTART\tEND\tDURATION\tREASON")
		for _, sr := range ranges {
			fmt.Fprintln(tw, formatRange(sr))
		}
		return tw.Flush()
	},
}

var skipUpdateCmd = &cobra.Command{
	Use:   "update [range id]",
	Short: "Change a range's bounds or reason",
	Long:  "Both --start and --end are needed to move a range. An empty --reason clears it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("range", args[0])
		if err != nil {
			return err
		}
		var iv *models.TimeInterval
		startSet, endSet := cmd.Flags().Changed("start"), cmd.Flags().Changed("end")
		if startSet != endSet {
			return apperrors.InvalidRange("--start and --end must be given together")
		}
		if startSet {
			start, err := parseSeconds("start", skipStart)
			if err != nil {
				return err
			}
			end, err := parseSeconds("end", skipEnd)
			if err != nil {
				return err
			}
			iv = &models.TimeInterval{Start: start, End: end}
		}
		reason := reasonFlag(cmd)
		if iv == nil && reason == nil {
			return apperrors.InvalidRange("nothing to update")
		}

		sr, err := app.ranges.Update(cmd.Context(), id, iv, reason)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatRange(sr))
		return nil
	},
}

var skipDeleteCmd = &cobra.Command{
	Use:   "delete [range id]",
	Short: "Delete one skip range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("range", args[0])
		if err != nil {
			return err
		}
		removed, err := app.ranges.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !removed {
			return apperrors.NotFound("skip range %s not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

var skipClearCmd = &cobra.Command{
	Use:   "clear [job id]",
	Short: "Delete every skip range of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		n, err := app.ranges.Clear(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d ranges\n", n)
		return nil
	},
}

var skipTotalCmd = &cobra.Command{
	Use:   "total [job id]",
	Short: "Print the seconds covered by a job's skip ranges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		total, err := app.ranges.TotalDuration(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", total)
		return nil
	},
}

func init() {
	skipAddCmd.Flags().StringVar(&skipReason, "reason", "", "why the range is skipped (max 100 characters)")
	skipUpdateCmd.Flags().StringVar(&skipReason, "reason", "", "new reason; empty clears it")
	skipUpdateCmd.Flags().StringVar(&skipStart, "start", "", "new start in seconds")
	skipUpdateCmd.Flags().StringVar(&skipEnd, "end", "", "new end in seconds")
	skipListCmd.Flags().BoolVar(&skipJSON, "json", false, "print JSON")

	skipCmd.AddCommand(skipAddCmd)
	skipCmd.AddCommand(skipListCmd)
	skipCmd.AddCommand(skipUpdateCmd)
	skipCmd.AddCommand(skipDeleteCmd)
	skipCmd.AddCommand(skipClearCmd)
	skipCmd.AddCommand(skipTotalCmd)
}
