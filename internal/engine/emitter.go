package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"sourcing/internal/clock"
	"sourcing/models"
)

var eventTitles = map[models.EventKind]string{
	models.EventBidSubmitted:        "New bid received",
	models.EventBidWithdrawn:        "Bid withdrawn",
	models.EventBidAccepted:         "Your bid was accepted",
	models.EventBidRejected:         "Your bid was not selected",
	models.EventBidExpired:          "Your bid expired",
	models.EventAssignmentStarted:   "Production started",
	models.EventAssignmentCompleted: "Order production completed",
	models.EventAssignmentCancelled: "Assignment cancelled",
	models.EventOrderStatusChanged:  "Order status updated",
	models.EventOrderCancelled:      "Order cancelled",
	models.EventReviewSubmitted:     "New review received",
	models.EventApplicationReviewed: "Vendor application reviewed",
}

// Notice is what a component knows about a transition worth telling someone.
type Notice struct {
	Recipient    string
	OrderID      string
	BidID        string
	AssignmentID string
	Message      string
	Payload      any
}

// Emitter records lifecycle events in the outbox. It writes through the
// caller's transaction, so an event exists only if its transition committed.
// Delivery happens later in notify.Relay.
type Emitter struct {
	store EventStore
	clock clock.Clock
	newID func() string
}

func (e *Emitter) Emit(ctx context.Context, kind models.EventKind, n Notice) error {
	ev := models.Event{
		ID:           e.newID(),
		Kind:         kind,
		RecipientID:  n.Recipient,
		OrderID:      optional(n.OrderID),
		BidID:        optional(n.BidID),
		AssignmentID: optional(n.AssignmentID),
		Title:        eventTitles[kind],
		Message:      n.Message,
		Status:       models.EventPending,
		CreatedAt:    e.clock.Now(),
	}
	if n.Payload != nil {
		payload, err := json.Marshal(n.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		ev.Payload = payload
	}
	return e.store.AppendEvents(ctx, ev)
}

func (e *Emitter) bidEvent(ctx context.Context, kind models.EventKind, recipient string, bid models.Bid, msg string) error {
	return e.Emit(ctx, kind, Notice{
		Recipient: recipient,
		OrderID:   bid.OrderID,
		BidID:     bid.ID,
		Message:   msg,
		Payload: map[string]any{
			"bidId":        bid.ID,
			"orderId":      bid.OrderID,
			"vendorId":     bid.VendorID,
			"amount":       bid.Amount.String(),
			"deliveryDays": bid.DeliveryDays,
			"status":       bid.Status,
		},
	})
}

// acceptedEvent tells the winning vendor which assignment to report on.
func (e *Emitter) acceptedEvent(ctx context.Context, bid models.Bid, a models.Assignment, msg string) error {
	return e.Emit(ctx, models.EventBidAccepted, Notice{
		Recipient:    bid.VendorID,
		OrderID:      bid.OrderID,
		BidID:        bid.ID,
		AssignmentID: a.ID,
		Message:      msg,
		Payload: map[string]any{
			"bidId":              bid.ID,
			"orderId":            bid.OrderID,
			"vendorId":           bid.VendorID,
			"amount":             bid.Amount.String(),
			"deliveryDays":       bid.DeliveryDays,
			"status":             bid.Status,
			"assignmentId":       a.ID,
			"expectedCompletion": a.ExpectedCompletion,
		},
	})
}

func (e *Emitter) assignmentEvent(ctx context.Context, kind models.EventKind, recipient string, a models.Assignment, msg string) error {
	return e.Emit(ctx, kind, Notice{
		Recipient:    recipient,
		OrderID:      a.OrderID,
		AssignmentID: a.ID,
		Message:      msg,
		Payload: map[string]any{
			"assignmentId": a.ID,
			"orderId":      a.OrderID,
			"vendorId":     a.VendorID,
			"status":       a.Status,
		},
	})
}

func (e *Emitter) orderEvent(ctx context.Context, kind models.EventKind, recipient string, o models.Order, prev models.OrderStatus, msg string) error {
	return e.Emit(ctx, kind, Notice{
		Recipient: recipient,
		OrderID:   o.ID,
		Message:   msg,
		Payload: map[string]any{
			"orderId":        o.ID,
			"previousStatus": prev,
			"status":         o.Status,
		},
	})
}
