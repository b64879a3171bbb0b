package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"partner-sync-go/internal/config"
	"partner-sync-go/internal/db"
	"partner-sync-go/pkg/logger"
)

func newMigrateCmd(log logger.Logger) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(log, flagConfigPath)
			if err != nil {
				return err
			}

			dbConn, err := db.Open(cfg.DB, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(dbConn) }()

			if !status {
				return db.Migrate(cmd.Context(), dbConn, cfg.DB.Driver, log)
			}

			results, err := db.MigrationStatus(cmd.Context(), dbConn, cfg.DB.Driver)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATE\tSOURCE")
			for _, result := range results {
				fmt.Fprintf(w, "%d\t%s\t%s\n", result.Source.Version, result.State, result.Source.Path)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")
	return cmd
}
