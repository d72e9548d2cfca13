package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sourcing/internal/clock"
	"sourcing/internal/logger"
	"sourcing/models"
)

// OrderMachine is the only writer of order status. Every write is the result
// of a named event applied through models.Order.Apply and persisted with a
// compare-and-swap on the previous status.
type OrderMachine struct {
	store      Store
	clock      clock.Clock
	log        logger.Logger
	events     *Emitter
	newID      func() string
	ledger     *Ledger
	reputation *Reputation

	// assignments closes the open assignment when a vendor ships straight
	// from production.
	assignments *Coordinator
}

type CreateOrderInput struct {
	Title              string
	Description        string
	Material           string
	Quantity           int
	Priority           models.Priority
	TargetPrice        decimal.NullDecimal
	TargetDeliveryDate *time.Time
}

func (m *OrderMachine) CreateOrder(ctx context.Context, actor models.Actor, in CreateOrderInput) (models.Order, error) {
	if actor.Role != models.RoleBuyer && !actor.IsAdmin() {
		return models.Order{}, models.ErrForbidden
	}

	now := m.clock.Now()
	order := models.Order{
		ID:                 m.newID(),
		BuyerID:            actor.ID,
		Title:              in.Title,
		Description:        in.Description,
		Material:           in.Material,
		Quantity:           in.Quantity,
		Priority:           in.Priority,
		TargetPrice:        in.TargetPrice,
		TargetDeliveryDate: in.TargetDeliveryDate,
		Status:             models.OrderPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := order.Validate(); err != nil {
		return models.Order{}, err
	}

	if err := m.store.CreateOrder(ctx, order); err != nil {
		return models.Order{}, err
	}
	m.log.Infof(ctx, "order %s created by buyer %s", order.ID, order.BuyerID)
	return order, nil
}

func (m *OrderMachine) GetOrder(ctx context.Context, id string) (models.Order, error) {
	return m.store.GetOrder(ctx, id)
}

const recentOrdersWindow = 7 * 24 * time.Hour

// ListOrders is the order board. Without a status it lists orders open for
// bidding. Any other status is limited to the caller's own orders unless the
// caller is an admin.
func (m *OrderMachine) ListOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error) {
	if f.Status == "" {
		f.Status = models.OrderPending
	}
	if !actor.IsAdmin() {
		f.BuyerID, f.AssignedTo = "", ""
		if f.Status != models.OrderPending {
			f = scopeOrders(actor, f)
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return m.store.ListOrders(ctx, f)
}

func (m *OrderMachine) ListBuyerOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error) {
	f.BuyerID, f.AssignedTo = actor.ID, ""
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return m.store.ListOrders(ctx, f)
}

// ListVendorOrders lists the orders currently assigned to the calling vendor.
func (m *OrderMachine) ListVendorOrders(ctx context.Context, actor models.Actor, f models.OrderFilter) ([]models.Order, error) {
	f.BuyerID, f.AssignedTo = "", actor.ID
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return m.store.ListOrders(ctx, f)
}

// Statistics counts the orders the caller can see: every order for an admin,
// placed orders for a buyer and assigned orders for a vendor.
func (m *OrderMachine) Statistics(ctx context.Context, actor models.Actor) (models.OrderStats, error) {
	var f models.OrderFilter
	if !actor.IsAdmin() {
		f = scopeOrders(actor, f)
	}
	counts, err := m.store.CountOrders(ctx, f, m.clock.Now().Add(-recentOrdersWindow))
	if err != nil {
		return models.OrderStats{}, err
	}
	return models.NewOrderStats(counts), nil
}

func scopeOrders(actor models.Actor, f models.OrderFilter) models.OrderFilter {
	if actor.Role == models.RoleVendor {
		f.AssignedTo = actor.ID
	} else {
		f.BuyerID = actor.ID
	}
	return f
}

func (m *OrderMachine) History(ctx context.Context, orderID string) ([]models.OrderStatusChange, error) {
	if _, err := m.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return m.store.ListOrderHistory(ctx, orderID)
}

type ApplyInput struct {
	Event  models.OrderEvent
	Reason string
	Notes  string
}

// Apply raises an externally triggered event on an order. Events owned by the
// assignment coordinator are refused.
func (m *OrderMachine) Apply(ctx context.Context, actor models.Actor, orderID string, in ApplyInput) (models.Order, error) {
	if !in.Event.Valid() || !in.Event.External() {
		return models.Order{}, fmt.Errorf("%w: event %q cannot be applied directly", models.ErrIllegalTransition, in.Event)
	}

	var updated models.Order
	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		order, err := m.store.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrderEvent(actor, order, in.Event); err != nil {
			return err
		}

		if in.Event == models.OrderEventCancelled {
			updated, err = m.cancel(txCtx, actor, order, in.Reason, in.Notes)
			return err
		}
		if in.Event == models.OrderEventShipped && order.Status == models.OrderInProduction {
			if order, err = m.assignments.completeForShipment(txCtx, actor, order, ""); err != nil {
				return err
			}
		}

		updated, err = m.transition(txCtx, actor.ID, order, models.OrderChange{Event: in.Event}, in.Notes)
		if err != nil {
			return err
		}
		return m.events.orderEvent(txCtx, models.EventOrderStatusChanged, counterpart(actor, updated), updated, order.Status,
			fmt.Sprintf("Order %q is now %s", updated.Title, updated.Status))
	})
	if err != nil {
		return models.Order{}, err
	}

	m.log.Infof(ctx, "order %s: %s -> %s", updated.ID, in.Event, updated.Status)
	return updated, nil
}

func authorizeOrderEvent(actor models.Actor, order models.Order, ev models.OrderEvent) error {
	if actor.IsAdmin() {
		return nil
	}
	if ev == models.OrderEventShipped {
		if order.AssignedTo == nil || *order.AssignedTo != actor.ID {
			return models.ErrNotOwner
		}
		return nil
	}
	if order.BuyerID != actor.ID {
		return models.ErrNotOwner
	}
	return nil
}

// counterpart is the party on the other side of the order from the actor.
func counterpart(actor models.Actor, order models.Order) string {
	if actor.ID == order.BuyerID && order.AssignedTo != nil {
		return *order.AssignedTo
	}
	return order.BuyerID
}

// transition applies ch to order, persists it conditionally on the status the
// caller read, and records the change in the order history.
func (m *OrderMachine) transition(ctx context.Context, by string, order models.Order, ch models.OrderChange, notes string) (models.Order, error) {
	now := m.clock.Now()
	next, err := order.Apply(ch, now)
	if err != nil {
		return models.Order{}, err
	}
	if err := m.store.UpdateOrder(ctx, next, order.Status); err != nil {
		return models.Order{}, err
	}
	err = m.store.AppendOrderHistory(ctx, models.OrderStatusChange{
		ID:             m.newID(),
		OrderID:        order.ID,
		PreviousStatus: order.Status,
		NewStatus:      next.Status,
		Event:          ch.Event,
		ChangedBy:      by,
		Notes:          optional(notes),
		ChangedAt:      now,
	})
	if err != nil {
		return models.Order{}, err
	}
	return next, nil
}

// cancel terminates the order, rejects its active bids and cancels its open
// assignment.
func (m *OrderMachine) cancel(ctx context.Context, actor models.Actor, order models.Order, reason, notes string) (models.Order, error) {
	updated, err := m.transition(ctx, actor.ID, order, models.OrderChange{Event: models.OrderEventCancelled, Reason: reason}, notes)
	if err != nil {
		return models.Order{}, err
	}
	now := updated.UpdatedAt

	if err := m.ledger.rejectActive(ctx, order, nil, now); err != nil {
		return models.Order{}, err
	}

	recipient := order.BuyerID
	open, err := m.store.GetOpenAssignment(ctx, order.ID)
	if err != nil {
		return models.Order{}, err
	}
	if open != nil {
		cancelled := *open
		cancelled.Status = models.AssignmentCancelled
		cancelled.UpdatedAt = now
		if notes != "" {
			cancelled.CompletionNotes = &notes
		}
		if err := m.store.UpdateAssignment(ctx, cancelled, open.Status); err != nil {
			return models.Order{}, err
		}
		if err := m.events.assignmentEvent(ctx, models.EventAssignmentCancelled, cancelled.VendorID, cancelled,
			fmt.Sprintf("The assignment for %q was cancelled with the order", order.Title)); err != nil {
			return models.Order{}, err
		}
		if err := m.reputation.recompute(ctx, cancelled.VendorID); err != nil {
			return models.Order{}, err
		}
		recipient = cancelled.VendorID
	}

	msg := fmt.Sprintf("Order %q was cancelled", order.Title)
	if reason != "" {
		msg += ": " + reason
	}
	if err := m.events.orderEvent(ctx, models.EventOrderCancelled, recipient, updated, order.Status, msg); err != nil {
		return models.Order{}, err
	}
	return updated, nil
}
