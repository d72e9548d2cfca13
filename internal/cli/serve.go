package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"sourcing/db"
	"sourcing/db/migrations"
	"sourcing/internal/clock"
	"sourcing/internal/engine"
	"sourcing/internal/handlers"
	"sourcing/internal/logger"
	"sourcing/internal/notify"
	"sourcing/internal/scheduler"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Migrate bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the bid expiry sweeper and the notification relay",
		Long: `Run the HTTP API together with the background workers.

The sweeper expires bids past their horizon on sweep.interval. The relay
delivers outbox events to the configured notify.driver.

Example:
  sourcing serve --config ./config.yaml
  POSTGRES_CONN=postgres://localhost/sourcing sourcing serve --migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if opts.Migrate {
		if err := migrations.Up(ctx, conn.DB, log); err != nil {
			return err
		}
	}

	store := db.NewStorage(conn)
	clk := clock.NewSystem()
	eng := engine.New(store, clk, log, engine.WithBidHorizon(cfg.Bids.Horizon))

	publisher, err := notify.NewPublisher(ctx, cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("notification publisher: %w", err)
	}
	defer publisher.Close()

	var wg sync.WaitGroup
	if cfg.Sweep.Enabled {
		sweeper := scheduler.NewSweeper(eng.Ledger, clk, log, cfg.Sweep.Interval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, log, "sweeper", sweeper.Run)
		}()
	}
	relay := notify.NewRelay(store, publisher, clk, log, cfg.Notify)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runWorker(ctx, log, "relay", relay.Run)
	}()

	h := handlers.NewHandler(handlers.FromEngine(eng, store), log)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof(ctx, "starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Infof(context.Background(), "shutting down")
	case serveErr = <-errCh:
		log.Errorf(context.Background(), "server failed: %v", serveErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(shutdownCtx, "graceful shutdown failed: %v", err)
	}
	wg.Wait()

	return serveErr
}

// runWorker blocks in run until ctx is done and logs a worker that exits
// with an error.
func runWorker(ctx context.Context, log logger.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf(context.Background(), "%s stopped: %v", name, err)
	}
}
