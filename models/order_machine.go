package models

import (
	"fmt"
	"time"
)

// OrderEvent names a transition of the order state machine. Status is never
// written directly.
type OrderEvent string

const (
	OrderEventBidAccepted         OrderEvent = "bid_accepted"
	OrderEventProductionStarted   OrderEvent = "production_started"
	OrderEventProductionCompleted OrderEvent = "production_completed"
	OrderEventShipped             OrderEvent = "shipped"
	OrderEventDelivered           OrderEvent = "delivered"
	OrderEventCancelled           OrderEvent = "cancelled"
	OrderEventHold                OrderEvent = "hold"
	OrderEventResume              OrderEvent = "resume"
	OrderEventAssignmentReleased  OrderEvent = "assignment_released"
)

// Fixed-source transitions. Cancelled, Hold and Resume depend on the current
// state and are resolved in Next.
var orderTransitions = map[OrderEvent]map[OrderStatus]OrderStatus{
	OrderEventBidAccepted: {
		OrderPending:   OrderConfirmed,
		OrderConfirmed: OrderConfirmed,
	},
	OrderEventProductionStarted: {
		OrderConfirmed: OrderInProduction,
	},
	OrderEventProductionCompleted: {
		OrderInProduction: OrderCompleted,
	},
	// Shipping from production goes through OrderMachine.Apply, which completes
	// the assignment first.
	OrderEventShipped: {
		OrderCompleted: OrderShipped,
	},
	OrderEventDelivered: {
		OrderShipped: OrderDelivered,
	},
	OrderEventAssignmentReleased: {
		OrderConfirmed:    OrderPending,
		OrderInProduction: OrderPending,
		OrderCompleted:    OrderPending,
		OrderOnHold:       OrderPending,
	},
}

func (e OrderEvent) Valid() bool {
	switch e {
	case OrderEventBidAccepted, OrderEventProductionStarted, OrderEventProductionCompleted,
		OrderEventShipped, OrderEventDelivered, OrderEventCancelled,
		OrderEventHold, OrderEventResume, OrderEventAssignmentReleased:
		return true
	default:
		return false
	}
}

// External reports whether callers outside the engine may raise the event.
// The rest are raised by the assignment coordinator.
func (e OrderEvent) External() bool {
	switch e {
	case OrderEventShipped, OrderEventDelivered, OrderEventCancelled, OrderEventHold, OrderEventResume:
		return true
	default:
		return false
	}
}

// Next returns the status the order moves to on ev.
func (o Order) Next(ev OrderEvent) (OrderStatus, error) {
	illegal := fmt.Errorf("%w: %s from %s", ErrIllegalTransition, ev, o.Status)

	switch ev {
	case OrderEventCancelled:
		if o.Status.Terminal() {
			return "", illegal
		}
		return OrderCancelled, nil
	case OrderEventHold:
		if o.Status.Terminal() || o.Status == OrderOnHold {
			return "", illegal
		}
		return OrderOnHold, nil
	case OrderEventResume:
		if o.Status != OrderOnHold || o.HeldFrom == nil {
			return "", illegal
		}
		return *o.HeldFrom, nil
	}

	to, ok := orderTransitions[ev][o.Status]
	if !ok {
		return "", illegal
	}
	return to, nil
}

// OrderChange carries the event and its payload.
type OrderChange struct {
	Event    OrderEvent
	VendorID string // BidAccepted
	Reason   string // Cancelled
}

// Apply returns a copy of o moved by the change, with the status specific
// fields stamped at the given time.
func (o Order) Apply(ch OrderChange, at time.Time) (Order, error) {
	to, err := o.Next(ch.Event)
	if err != nil {
		return o, err
	}

	next := o
	next.Status = to
	next.UpdatedAt = at

	switch ch.Event {
	case OrderEventBidAccepted:
		if ch.VendorID == "" {
			return o, fmt.Errorf("%w: bid accepted without vendor", ErrIllegalTransition)
		}
		vendor := ch.VendorID
		next.AssignedTo = &vendor
	case OrderEventShipped:
		next.ShippedAt = &at
	case OrderEventDelivered:
		next.DeliveredAt = &at
	case OrderEventCancelled:
		next.CancelledAt = &at
		if ch.Reason != "" {
			reason := ch.Reason
			next.CancelledReason = &reason
		}
		next.AssignedTo = nil
		next.HeldFrom = nil
	case OrderEventHold:
		from := o.Status
		next.HeldFrom = &from
	case OrderEventResume:
		next.HeldFrom = nil
	case OrderEventAssignmentReleased:
		next.AssignedTo = nil
		next.HeldFrom = nil
	}
	return next, nil
}
