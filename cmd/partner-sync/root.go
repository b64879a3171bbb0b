package main

import (
	"github.com/spf13/cobra"

	"partner-sync-go/pkg/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var flagConfigPath string

func newRootCmd(log logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "partner-sync",
		Short:         "Offline sync service for partner devices",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "TOML config file (defaults to $CONFIG_FILE)")

	cmd.AddCommand(newServeCmd(log))
	cmd.AddCommand(newMigrateCmd(log))
	cmd.AddCommand(newSweepCmd(log))

	return cmd
}
