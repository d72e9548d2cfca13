package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sourcing/db"
	"sourcing/internal/clock"
	"sourcing/internal/engine"
	"sourcing/internal/notify"
	"sourcing/internal/scheduler"
)

// NewSweepCommand expires overdue bids once, for deployments that drive the
// sweep from an external cron instead of serve.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every active bid past its horizon and exit",
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

			clk := clock.NewSystem()
			eng := engine.New(db.NewStorage(conn), clk, log, engine.WithBidHorizon(cfg.Bids.Horizon))
			n, err := scheduler.NewSweeper(eng.Ledger, clk, log, cfg.Sweep.Interval).RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("expire sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d bids\n", n)
			return nil
		},
	}
}

// NewDeliverCommand pushes one batch of due outbox events and exits.
func NewDeliverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deliver",
		Short: "Deliver one batch of pending notifications and exit",
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

			publisher, err := notify.NewPublisher(cmd.Context(), cfg.Notify, log)
			if err != nil {
				return fmt.Errorf("notification publisher: %w", err)
			}
			defer publisher.Close()

			relay := notify.NewRelay(db.NewStorage(conn), publisher, clock.NewSystem(), log, cfg.Notify)
			n, err := relay.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("deliver notifications: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d notifications\n", n)
			return nil
		},
	}
}
