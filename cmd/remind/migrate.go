package main

import (
	"errors"
	"fmt"

	pgqueue "github.com/ecociel/remind/lib/queue/postgres"
	"github.com/ecociel/remind/repos/sql"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schemas",
		Long: `Create the task table and the job table in the database named by
REMIND_DB_CONNECTION_URI. SQLite stores migrate themselves on open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.DbConnectionUri == "" {
				return errors.New("REMIND_DB_CONNECTION_URI is required")
			}
			ctx := cmd.Context()

			pool, err := a.postgres(ctx)
			if err != nil {
				return err
			}
			if a.cfg.StoreDriver == "postgres" {
				if err := sql.NewPostgresRepo(pool).Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "task schema applied")
			}
			if a.cfg.QueueDriver == "postgres" {
				if err := pgqueue.New(pool, a.cfg.ClaimLease).Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "job schema applied")
			}
			return nil
		},
	}
}
