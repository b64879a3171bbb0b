package main

import (
	"github.com/spf13/cobra"

	"partner-sync-go/internal/app"
	"partner-sync-go/pkg/logger"
)

func newSweepCmd(log logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail operations stuck in flight once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(cmd.Context(), log, flagConfigPath)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			swept := application.Sweeper().RunOnce(cmd.Context())
			log.Info("scheduler.sweep: done", "swept", swept)
			return nil
		},
	}
}
