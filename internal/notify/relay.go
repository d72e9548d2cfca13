package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"sourcing/internal/clock"
	"sourcing/internal/config"
	"sourcing/internal/logger"
	"sourcing/models"
)

var ErrAlreadyRunning = errors.New("relay already running")

// OutboxStore is the storage side of the relay.
type OutboxStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	PendingEvents(ctx context.Context, now time.Time, limit int) ([]models.Event, error)
	MarkEventSent(ctx context.Context, id string, at time.Time) error
	MarkEventFailed(ctx context.Context, id string, attempts int, status models.EventStatus, next time.Time, lastErr string) error
}

// Relay moves outbox events to a Publisher. Delivery is at least once:
// an event is marked sent only after the publisher accepted it.
type Relay struct {
	store        OutboxStore
	publisher    Publisher
	clock        clock.Clock
	log          logger.Logger
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	running      *atomic.Bool
}

func NewRelay(store OutboxStore, publisher Publisher, clk clock.Clock, log logger.Logger, cfg config.NotifyConfig) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		clock:        clk,
		log:          log.With("component", "relay"),
		pollInterval: cfg.PollInterval,
		limit:        cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		running:      atomic.NewBool(false),
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 2 * time.Second
	}
	if r.limit <= 0 {
		r.limit = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 3
	}
	if r.retryDelay <= 0 {
		r.retryDelay = 2 * time.Second
	}
	return r
}

// RunOnce delivers one batch of due events and reports how many were sent.
// Publish failures are recorded on the event, not returned.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	sent := 0
	err := r.store.WithTx(ctx, func(ctx context.Context) error {
		now := r.clock.Now()
		events, err := r.store.PendingEvents(ctx, now, r.limit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				if err := r.fail(ctx, ev, now, err); err != nil {
					return err
				}
				continue
			}
			if err := r.store.MarkEventSent(ctx, ev.ID, now); err != nil {
				return fmt.Errorf("event %s: %w", ev.ID, err)
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

func (r *Relay) fail(ctx context.Context, ev models.Event, now time.Time, cause error) error {
	attempts := ev.Attempts + 1
	status := models.EventFailed
	if attempts >= r.maxAttempts {
		status = models.EventDead
	}
	next := now.Add(r.retryDelay)
	if err := r.store.MarkEventFailed(ctx, ev.ID, attempts, status, next, cause.Error()); err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if status == models.EventDead {
		r.log.Errorf(ctx, "event %s (%s) dropped after %d attempts: %v", ev.ID, ev.Kind, attempts, cause)
	} else {
		r.log.Warnf(ctx, "event %s (%s) attempt %d failed, retry at %s: %v",
			ev.ID, ev.Kind, attempts, next.Format(time.RFC3339), cause)
	}
	return nil
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CAS(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.log.Infof(ctx, "relay started, poll interval %s", r.pollInterval)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infof(context.Background(), "relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Errorf(ctx, "relay batch failed: %v", err)
			}
		}
	}
}

func (r *Relay) Running() bool {
	return r.running.Load()
}
