package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"sourcing/db"
	"sourcing/internal/config"
	"sourcing/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string // overrides app.log_level when set
}

// NewRootCommand creates the sourcing command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "sourcing",
		Short:         "Sourcing marketplace order and bid lifecycle service",
		Long:          "Runs the order/bid lifecycle engine: bids, assignments, vendor reputation and lifecycle notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewDeliverCommand(opts))

	return cmd
}

// load reads and validates the configuration and builds the logger.
func (o *RootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if o.LogLevel != "" {
		cfg.App.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log.With("service", cfg.App.Name), nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	conn, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}
	return conn, nil
}
