package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"partner-sync-go/internal/app"
	"partner-sync-go/pkg/logger"
)

func newServeCmd(log logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale operation sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), log)
		},
	}
}

func runServe(parent context.Context, log logger.Logger) error {
	log.Info("app: starting", "version", version)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, log, flagConfigPath)
	if err != nil {
		return err
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.Critical("app: server failed", "err", runErr)
	}

	if err := application.Close(); err != nil {
		log.Error("app: close failed", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	if runErr == nil {
		log.Info("app: stopped")
	}
	return runErr
}
