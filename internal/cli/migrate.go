package cli

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"sourcing/db/migrations"
	"sourcing/internal/logger"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(newMigrateStep(rootOpts, "up", "Apply every pending migration", migrations.Up))
	cmd.AddCommand(newMigrateStep(rootOpts, "down", "Roll back the latest migration", migrations.Down))
	cmd.AddCommand(newMigrateStep(rootOpts, "status", "Print the state of every migration", migrations.Status))

	return cmd
}

type migrateFunc func(ctx context.Context, db *sql.DB, log logger.Logger) error

func newMigrateStep(rootOpts *RootOptions, use, short string, fn migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			return fn(cmd.Context(), conn.DB, log)
		},
	}
}
