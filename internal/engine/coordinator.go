package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

// Coordinator turns a winning bid into the order's single assignment and
// relays vendor progress on that assignment to the order state machine.
type Coordinator struct {
	store      Store
	clock      clock.Clock
	log        logger.Logger
	events     *Emitter
	newID      func() string
	ledger     *Ledger
	orders     *OrderMachine
	reputation *Reputation
}

// AcceptBidAndAssign accepts bidID for orderID. The bid acceptance, the
// rejection of competing bids, the new assignment and the order confirmation
// commit together or not at all.
func (c *Coordinator) AcceptBidAndAssign(ctx context.Context, actor models.Actor, orderID, bidID string) (models.Assignment, error) {
	now := c.clock.Now()
	var assignment models.Assignment

	err := c.store.WithTx(ctx, func(txCtx context.Context) error {
		order, err := c.store.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actor.ID && !actor.IsAdmin() {
			return models.ErrNotOwner
		}

		bid, err := c.store.GetBid(txCtx, bidID)
		if err != nil {
			return err
		}
		if bid.OrderID != order.ID {
			return fmt.Errorf("%w: bid %s is not on order %s", models.ErrNotFound, bid.ID, order.ID)
		}

		switch {
		case bid.Status == models.BidExpired,
			bid.Status == models.BidActive && !bid.ExpiresAt.After(now):
			return fmt.Errorf("%w: bid %s expired at %s", models.ErrAlreadyFinalized, bid.ID, bid.ExpiresAt.Format(time.RFC3339))
		case bid.Status != models.BidActive:
			return fmt.Errorf("%w: bid %s is %s", models.ErrInvalidTransition, bid.ID, bid.Status)
		}

		open, err := c.store.GetOpenAssignment(txCtx, order.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return models.ErrAssignmentAlreadyExists
		}
		if _, err := order.Next(models.OrderEventBidAccepted); err != nil {
			return err
		}

		accepted, err := c.ledger.acceptBid(txCtx, order, bid, now)
		if err != nil {
			return err
		}

		assignment = models.Assignment{
			ID:                 c.newID(),
			OrderID:            order.ID,
			VendorID:           bid.VendorID,
			WinningBidID:       bid.ID,
			Status:             models.AssignmentAssigned,
			AssignedAt:         now,
			ExpectedCompletion: now.AddDate(0, 0, bid.DeliveryDays),
			UpdatedAt:          now,
		}
		if err := c.store.CreateAssignment(txCtx, assignment); err != nil {
			return err
		}
		if err := c.events.acceptedEvent(txCtx, accepted, assignment,
			fmt.Sprintf("Your bid of %s on %q was accepted", accepted.Amount, order.Title)); err != nil {
			return err
		}

		_, err = c.orders.transition(txCtx, actor.ID, order, models.OrderChange{
			Event:    models.OrderEventBidAccepted,
			VendorID: bid.VendorID,
		}, "")
		return err
	})
	if err != nil {
		return models.Assignment{}, err
	}

	c.log.Infof(ctx, "order %s assigned to vendor %s via bid %s", assignment.OrderID, assignment.VendorID, assignment.WinningBidID)
	return assignment, nil
}

type UpdateAssignmentInput struct {
	AssignmentID string
	Status       models.AssignmentStatus
	Notes        string
	CompletedAt  *time.Time
}

var assignmentOrderEvents = map[models.AssignmentStatus]models.OrderEvent{
	models.AssignmentInProgress: models.OrderEventProductionStarted,
	models.AssignmentCompleted:  models.OrderEventProductionCompleted,
	models.AssignmentCancelled:  models.OrderEventAssignmentReleased,
}

var assignmentEventKinds = map[models.AssignmentStatus]models.EventKind{
	models.AssignmentInProgress: models.EventAssignmentStarted,
	models.AssignmentCompleted:  models.EventAssignmentCompleted,
	models.AssignmentCancelled:  models.EventAssignmentCancelled,
}

// UpdateAssignment moves an assignment along assigned -> in_progress ->
// completed, or cancels it. Cancelling returns the order to pending so it can
// be bid on again.
func (c *Coordinator) UpdateAssignment(ctx context.Context, actor models.Actor, in UpdateAssignmentInput) (models.Assignment, error) {
	if !in.Status.Valid() {
		return models.Assignment{}, fmt.Errorf("%w: unknown assignment status %q", models.ErrInvalidTransition, in.Status)
	}

	notes := strings.TrimSpace(in.Notes)
	var updated models.Assignment

	err := c.store.WithTx(ctx, func(txCtx context.Context) error {
		current, err := c.store.GetAssignment(txCtx, in.AssignmentID)
		if err != nil {
			return err
		}
		order, err := c.store.GetOrder(txCtx, current.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeAssignmentUpdate(actor, current, order, in.Status); err != nil {
			return err
		}
		updated, _, err = c.move(txCtx, actor, current, order, in.Status, notes, in.CompletedAt)
		return err
	})
	if err != nil {
		return models.Assignment{}, err
	}

	c.log.Infof(ctx, "assignment %s is now %s", updated.ID, updated.Status)
	return updated, nil
}

// move applies one assignment transition and the order event it implies. It
// must run inside a transaction holding the order row.
func (c *Coordinator) move(ctx context.Context, actor models.Actor, current models.Assignment, order models.Order,
	to models.AssignmentStatus, notes string, completedAt *time.Time) (models.Assignment, models.Order, error) {
	if !current.Status.CanMoveTo(to) {
		return models.Assignment{}, models.Order{}, fmt.Errorf("%w: assignment %s cannot move from %s to %s",
			models.ErrInvalidTransition, current.ID, current.Status, to)
	}

	now := c.clock.Now()
	updated := current
	updated.Status = to
	updated.UpdatedAt = now
	if notes != "" {
		updated.CompletionNotes = &notes
	}
	if to == models.AssignmentCompleted {
		at := now
		if completedAt != nil {
			at = completedAt.UTC()
		}
		updated.ActualCompletion = &at
	}

	if err := c.store.UpdateAssignment(ctx, updated, current.Status); err != nil {
		return models.Assignment{}, models.Order{}, err
	}
	nextOrder, err := c.orders.transition(ctx, actor.ID, order, models.OrderChange{Event: assignmentOrderEvents[to]}, notes)
	if err != nil {
		return models.Assignment{}, models.Order{}, err
	}

	recipient := order.BuyerID
	if actor.ID == order.BuyerID {
		recipient = updated.VendorID
	}
	if err := c.events.assignmentEvent(ctx, assignmentEventKinds[to], recipient, updated,
		fmt.Sprintf("Assignment for %q is now %s", order.Title, updated.Status)); err != nil {
		return models.Assignment{}, models.Order{}, err
	}

	if to == models.AssignmentCompleted || to == models.AssignmentCancelled {
		if err := c.reputation.recompute(ctx, updated.VendorID); err != nil {
			return models.Assignment{}, models.Order{}, err
		}
	}
	return updated, nextOrder, nil
}

// completeForShipment closes the in-progress assignment of an order the vendor
// ships straight from production, so shipping never strands it.
func (c *Coordinator) completeForShipment(ctx context.Context, actor models.Actor, order models.Order, notes string) (models.Order, error) {
	open, err := c.store.GetOpenAssignment(ctx, order.ID)
	if err != nil {
		return models.Order{}, err
	}
	if open == nil || open.Status != models.AssignmentInProgress {
		return models.Order{}, fmt.Errorf("%w: order %s has no assignment in progress", models.ErrIllegalTransition, order.ID)
	}
	_, completed, err := c.move(ctx, actor, *open, order, models.AssignmentCompleted, notes, nil)
	return completed, err
}

func authorizeAssignmentUpdate(actor models.Actor, a models.Assignment, order models.Order, to models.AssignmentStatus) error {
	if actor.IsAdmin() || actor.ID == a.VendorID {
		return nil
	}
	if to == models.AssignmentCancelled && actor.ID == order.BuyerID {
		return nil
	}
	return models.ErrNotOwner
}

func (c *Coordinator) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	return c.store.GetAssignment(ctx, id)
}

// ListVendorAssignments lists the caller's assignments, newest first.
func (c *Coordinator) ListVendorAssignments(ctx context.Context, actor models.Actor, page models.Page) ([]models.Assignment, error) {
	if actor.Role != models.RoleVendor && !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	return c.store.ListVendorAssignments(ctx, actor.ID, page)
}

// GetOrderAssignment returns the order's current assignment, or its latest
// cancelled one. Only the buyer, the assigned vendor and admins may look.
func (c *Coordinator) GetOrderAssignment(ctx context.Context, actor models.Actor, orderID string) (models.Assignment, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.Assignment{}, err
	}
	a, err := c.store.GetOrderAssignment(ctx, order.ID)
	if err != nil {
		return models.Assignment{}, err
	}
	if actor.ID != order.BuyerID && actor.ID != a.VendorID && !actor.IsAdmin() {
		return models.Assignment{}, models.ErrNotOwner
	}
	return a, nil
}
