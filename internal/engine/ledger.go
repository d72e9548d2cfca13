package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

// Ledger is the authoritative store of bids per order. It owns bid ranking and
// every bid status transition.
type Ledger struct {
	store   Store
	clock   clock.Clock
	log     logger.Logger
	events  *Emitter
	newID   func() string
	horizon time.Duration
}

type SubmitBidInput struct {
	OrderID      string
	Amount       decimal.Decimal
	DeliveryDays int
	Notes        string
}

func (in SubmitBidInput) validate() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidBid)
	}
	if in.DeliveryDays < 1 {
		return fmt.Errorf("%w: deliveryDays must be at least 1", models.ErrInvalidBid)
	}
	if len(in.Notes) > 2000 {
		return fmt.Errorf("%w: notes max length 2000", models.ErrInvalidBid)
	}
	return nil
}

// SubmitBid places a new active bid for the calling vendor. A previous active
// bid of the same vendor on the same order is withdrawn as superseded in the
// same transaction.
func (l *Ledger) SubmitBid(ctx context.Context, actor models.Actor, in SubmitBidInput) (models.Bid, error) {
	if err := in.validate(); err != nil {
		return models.Bid{}, err
	}
	if actor.Role != models.RoleVendor {
		return models.Bid{}, models.ErrVendorNotEligible
	}

	now := l.clock.Now()
	var bid models.Bid

	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		order, err := l.store.GetOrder(txCtx, in.OrderID)
		if err != nil {
			return err
		}
		if err := l.checkBiddable(txCtx, order); err != nil {
			return err
		}

		profile, err := l.store.GetVendorProfile(txCtx, actor.ID)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrVendorNotEligible
		}
		if err != nil {
			return err
		}
		if !profile.Eligible() {
			return models.ErrVendorNotEligible
		}

		prior, err := l.store.GetActiveBid(txCtx, order.ID, actor.ID)
		if err != nil {
			return err
		}
		if prior != nil {
			reason := models.WithdrawSuperseded
			if err := l.store.TransitionBid(txCtx, prior.ID, models.BidActive, models.BidWithdrawn, &reason, now); err != nil {
				return err
			}
			prior.Status = models.BidWithdrawn
			prior.WithdrawReason = &reason
			if err := l.events.bidEvent(txCtx, models.EventBidWithdrawn, order.BuyerID, *prior,
				fmt.Sprintf("A bid of %s on %q was replaced by a newer bid", prior.Amount, order.Title)); err != nil {
				return err
			}
		}

		bid = models.Bid{
			ID:           l.newID(),
			OrderID:      order.ID,
			VendorID:     actor.ID,
			Amount:       in.Amount,
			DeliveryDays: in.DeliveryDays,
			Notes:        optional(strings.TrimSpace(in.Notes)),
			Status:       models.BidActive,
			SubmittedAt:  now,
			ExpiresAt:    now.Add(l.horizon),
			UpdatedAt:    now,
		}
		if err := l.store.CreateBid(txCtx, bid); err != nil {
			return err
		}
		return l.events.bidEvent(txCtx, models.EventBidSubmitted, order.BuyerID, bid,
			fmt.Sprintf("New bid of %s with %d day delivery on %q", bid.Amount, bid.DeliveryDays, order.Title))
	})
	if err != nil {
		return models.Bid{}, err
	}

	l.log.Infof(ctx, "bid %s submitted on order %s by vendor %s", bid.ID, bid.OrderID, bid.VendorID)
	return bid, nil
}

// checkBiddable accepts pending orders and confirmed orders that have no
// assignment yet.
func (l *Ledger) checkBiddable(ctx context.Context, order models.Order) error {
	switch order.Status {
	case models.OrderPending:
		return nil
	case models.OrderConfirmed:
		open, err := l.store.GetOpenAssignment(ctx, order.ID)
		if err != nil {
			return err
		}
		if open == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s is %s and not open for bidding", models.ErrInvalidBid, order.ID, order.Status)
}

// WithdrawBid lets a vendor pull one of its own active bids.
func (l *Ledger) WithdrawBid(ctx context.Context, actor models.Actor, bidID string) (models.Bid, error) {
	now := l.clock.Now()
	var bid models.Bid

	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		bid, err = l.store.GetBid(txCtx, bidID)
		if err != nil {
			return err
		}
		if bid.VendorID != actor.ID {
			return models.ErrNotOwner
		}
		if bid.Status != models.BidActive {
			return fmt.Errorf("%w: bid %s is %s", models.ErrInvalidTransition, bid.ID, bid.Status)
		}

		reason := models.WithdrawByVendor
		if err := l.store.TransitionBid(txCtx, bid.ID, models.BidActive, models.BidWithdrawn, &reason, now); err != nil {
			return err
		}
		bid.Status = models.BidWithdrawn
		bid.WithdrawReason = &reason
		bid.UpdatedAt = now

		order, err := l.store.GetOrder(txCtx, bid.OrderID)
		if err != nil {
			return err
		}
		return l.events.bidEvent(txCtx, models.EventBidWithdrawn, order.BuyerID, bid,
			fmt.Sprintf("A bid of %s on %q was withdrawn", bid.Amount, order.Title))
	})
	if err != nil {
		return models.Bid{}, err
	}

	l.log.Infof(ctx, "bid %s withdrawn by vendor %s", bid.ID, actor.ID)
	return bid, nil
}

// ListActiveBids returns the live bids of an order, cheapest first, earlier
// submission winning price ties.
func (l *Ledger) ListActiveBids(ctx context.Context, orderID string) ([]models.Bid, error) {
	if _, err := l.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return l.store.ListActiveBids(ctx, orderID, l.clock.Now())
}

func (l *Ledger) ListVendorBids(ctx context.Context, actor models.Actor, page models.Page) ([]models.Bid, error) {
	return l.store.ListVendorBids(ctx, actor.ID, page)
}

// ExpireSweep moves every active bid whose expiry is at or before now to
// expired and returns how many moved.
func (l *Ledger) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	var expired []models.Bid

	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		expired, err = l.store.ExpireBids(txCtx, now)
		if err != nil {
			return err
		}
		for _, b := range expired {
			if err := l.events.bidEvent(txCtx, models.EventBidExpired, b.VendorID, b,
				fmt.Sprintf("Your bid of %s expired without a decision", b.Amount)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(expired) > 0 {
		l.log.Infof(ctx, "expired %d bids", len(expired))
	}
	return len(expired), nil
}

// acceptBid marks the winning bid accepted and rejects every other active bid
// on the order. It must run inside the coordinator's transaction, which
// announces the acceptance once the assignment exists.
func (l *Ledger) acceptBid(ctx context.Context, order models.Order, bid models.Bid, now time.Time) (models.Bid, error) {
	if bid.Status != models.BidActive {
		return models.Bid{}, fmt.Errorf("%w: bid %s is %s", models.ErrInvalidTransition, bid.ID, bid.Status)
	}
	if err := l.store.TransitionBid(ctx, bid.ID, models.BidActive, models.BidAccepted, nil, now); err != nil {
		return models.Bid{}, err
	}
	bid.Status = models.BidAccepted
	bid.UpdatedAt = now
	return bid, l.rejectActive(ctx, order, &bid.ID, now)
}

func (l *Ledger) rejectActive(ctx context.Context, order models.Order, except *string, now time.Time) error {
	rejected, err := l.store.RejectActiveBids(ctx, order.ID, except, now)
	if err != nil {
		return err
	}
	for _, b := range rejected {
		if err := l.events.bidEvent(ctx, models.EventBidRejected, b.VendorID, b,
			fmt.Sprintf("Your bid of %s on %q was not selected", b.Amount, order.Title)); err != nil {
			return err
		}
	}
	return nil
}
