package engine

import (
	"time"

	"github.com/google/uuid"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
)

const defaultBidHorizon = 7 * 24 * time.Hour

// Engine groups the lifecycle components over one store.
type Engine struct {
	Ledger      *Ledger
	Orders      *OrderMachine
	Coordinator *Coordinator
	Reputation  *Reputation
	Onboarding  *Onboarding
	Emitter     *Emitter
}

type options struct {
	bidHorizon time.Duration
	newID      func() string
}

type Option func(*options)

// WithBidHorizon overrides how long a new bid stays active.
func WithBidHorizon(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.bidHorizon = d
		}
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func New(store Store, clk clock.Clock, log logger.Logger, opts ...Option) *Engine {
	o := options{
		bidHorizon: defaultBidHorizon,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	emitter := &Emitter{store: store, clock: clk, newID: o.newID}
	reputation := &Reputation{
		store:  store,
		clock:  clk,
		log:    log.With("component", "reputation"),
		events: emitter,
		newID:  o.newID,
	}
	ledger := &Ledger{
		store:   store,
		clock:   clk,
		log:     log.With("component", "ledger"),
		events:  emitter,
		newID:   o.newID,
		horizon: o.bidHorizon,
	}
	orders := &OrderMachine{
		store:      store,
		clock:      clk,
		log:        log.With("component", "orders"),
		events:     emitter,
		newID:      o.newID,
		ledger:     ledger,
		reputation: reputation,
	}
	coordinator := &Coordinator{
		store:      store,
		clock:      clk,
		log:        log.With("component", "coordinator"),
		events:     emitter,
		newID:      o.newID,
		ledger:     ledger,
		orders:     orders,
		reputation: reputation,
	}
	orders.assignments = coordinator
	onboarding := &Onboarding{
		store:  store,
		clock:  clk,
		log:    log.With("component", "onboarding"),
		events: emitter,
		newID:  o.newID,
	}

	return &Engine{
		Ledger:      ledger,
		Orders:      orders,
		Coordinator: coordinator,
		Reputation:  reputation,
		Onboarding:  onboarding,
		Emitter:     emitter,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
