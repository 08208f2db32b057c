package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JustinTDCT/cinescript/internal/config"
	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage tunables stored in the database",
	Long: "Stored settings override the config file and environment for every command and worker. Keys: " +
		strings.Join(config.SettingKeys(), ", ") + ".",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := app.settings.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, key := range config.SettingKeys() {
			if v, ok := values[key]; ok {
				fmt.Fprintf(tw, "%s\t%s\n", key, v)
			}
		}
		return tw.Flush()
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a stored setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := app.settings.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if value == "" {
			return apperrors.NotFound("setting %q is not stored", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Store a setting after checking it against the current config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.cfg.CheckSetting(args[0], args[1]); err != nil {
			return err
		}
		return app.settings.Set(cmd.Context(), args[0], args[1])
	},
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove a stored setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.settings.Delete(cmd.Context(), args[0])
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsDeleteCmd)
}
