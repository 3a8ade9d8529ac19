package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/agentlink/internal/config"
	"github.com/user/agentlink/internal/scheduler"
)

func init() {
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show every setting, secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return config.WriteValues(cmd.OutOrStdout(), loadConfig())
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one setting by its dotted key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := config.GetValue(cfgPath, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), config.DisplayValue(args[0], v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting by its dotted key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				shown, err := config.Update(cfgPath, args[0], args[1], configChecks...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
				return nil
			},
		},
	)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the agentlink config file",
}

// configChecks guard values that would otherwise only fail at startup.
var configChecks = []config.Check{
	{Key: "resync.schedule", Validate: func(v string) error {
		if v == "" {
			return nil
		}
		return scheduler.ValidateSchedule(v)
	}},
	{Key: "log_level", Validate: func(v string) error {
		switch strings.ToLower(v) {
		case "debug", "info", "warn", "error":
			return nil
		}
		return fmt.Errorf("want debug, info, warn or error, got %q", v)
	}},
}
