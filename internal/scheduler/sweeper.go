package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
)

var ErrAlreadyRunning = errors.New("sweeper already running")

// Expirer is the part of the bid ledger the sweeper drives.
type Expirer interface {
	ExpireSweep(ctx context.Context, now time.Time) (int, error)
}

// Sweeper triggers bid expiration on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	clock    clock.Clock
	log      logger.Logger
	interval time.Duration
	running  *atomic.Bool
}

func NewSweeper(expirer Expirer, clk clock.Clock, log logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		clock:    clk,
		log:      log.With("component", "sweeper"),
		interval: interval,
		running:  atomic.NewBool(false),
	}
}

// RunOnce expires everything due at the current time.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.expirer.ExpireSweep(ctx, s.clock.Now())
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.running.CAS(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.log.Infof(ctx, "sweeper started, interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.log.Infof(context.Background(), "sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Errorf(ctx, "expire sweep failed: %v", err)
		}
		return
	}
	if n > 0 {
		s.log.Debugf(ctx, "expire sweep moved %d bids", n)
	}
}

func (s *Sweeper) Running() bool {
	return s.running.Load()
}
