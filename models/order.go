package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending      OrderStatus = "pending"
	OrderConfirmed    OrderStatus = "confirmed"
	OrderInProduction OrderStatus = "in_production"
	OrderCompleted    OrderStatus = "completed"
	OrderShipped      OrderStatus = "shipped"
	OrderDelivered    OrderStatus = "delivered"
	OrderCancelled    OrderStatus = "cancelled"
	OrderOnHold       OrderStatus = "on_hold"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderInProduction, OrderCompleted,
		OrderShipped, OrderDelivered, OrderCancelled, OrderOnHold:
		return true
	default:
		return false
	}
}

// Terminal statuses accept no further events.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Assigned reports whether an order in this status must carry an assigned vendor.
func (s OrderStatus) Assigned() bool {
	switch s {
	case OrderConfirmed, OrderInProduction, OrderCompleted, OrderShipped, OrderDelivered:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Order is a buyer's manufacturing job open for bidding.
type Order struct {
	ID                 string              `db:"id" json:"id"`
	BuyerID            string              `db:"buyer_id" json:"buyerId"`
	Title              string              `db:"title" json:"title"`
	Description        string              `db:"description" json:"description"`
	Material           string              `db:"material" json:"material"`
	Quantity           int                 `db:"quantity" json:"quantity"`
	Priority           Priority            `db:"priority" json:"priority"`
	TargetPrice        decimal.NullDecimal `db:"target_price" json:"targetPrice"`
	TargetDeliveryDate *time.Time          `db:"target_delivery_date" json:"targetDeliveryDate,omitempty"`
	Status             OrderStatus         `db:"status" json:"status"`
	AssignedTo         *string             `db:"assigned_to" json:"assignedTo"`
	HeldFrom           *OrderStatus        `db:"held_from" json:"heldFrom,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updatedAt"`
	ShippedAt          *time.Time          `db:"shipped_at" json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time          `db:"delivered_at" json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time          `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelledReason    *string             `db:"cancelled_reason" json:"cancelledReason,omitempty"`
}

// Validate checks the buyer supplied fields of a new order.
func (o *Order) Validate() error {
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" || len(o.Title) > 200 {
		return fmt.Errorf("%w: title is required and max length 200", ErrInvalidOrder)
	}
	if len(o.Description) > 5000 {
		return fmt.Errorf("%w: description max length 5000", ErrInvalidOrder)
	}
	if o.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if o.Priority == "" {
		o.Priority = PriorityNormal
	}
	if !o.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidOrder, o.Priority)
	}
	if o.TargetPrice.Valid && !o.TargetPrice.Decimal.IsPositive() {
		return fmt.Errorf("%w: target price must be positive", ErrInvalidOrder)
	}
	return nil
}

// AssigneeConsistent reports whether AssignedTo agrees with the status.
// An order on hold is judged by the status it was held from.
func (o Order) AssigneeConsistent() bool {
	status := o.Status
	if status == OrderOnHold && o.HeldFrom != nil {
		status = *o.HeldFrom
	}
	return (o.AssignedTo != nil) == status.Assigned()
}

// OrderStatusChange is one row of an order's audit trail.
type OrderStatusChange struct {
	ID             string      `db:"id" json:"id"`
	OrderID        string      `db:"order_id" json:"orderId"`
	PreviousStatus OrderStatus `db:"previous_status" json:"previousStatus"`
	NewStatus      OrderStatus `db:"new_status" json:"newStatus"`
	Event          OrderEvent  `db:"event" json:"event"`
	ChangedBy      string      `db:"changed_by" json:"changedBy"`
	Notes          *string     `db:"notes" json:"notes,omitempty"`
	ChangedAt      time.Time   `db:"changed_at" json:"changedAt"`
}

// OrderFilter narrows an order listing. Zero fields match everything.
type OrderFilter struct {
	Status     OrderStatus
	Priority   Priority
	BuyerID    string
	AssignedTo string
	Page       Page
}

// Validate rejects unknown status or priority values.
func (f OrderFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, f.Status)
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidOrder, f.Priority)
	}
	return nil
}

// OrderCount is the number of orders sharing a status and priority, and how
// many of them were created recently.
type OrderCount struct {
	Status   OrderStatus `db:"status"`
	Priority Priority    `db:"priority"`
	Total    int         `db:"total"`
	Recent   int         `db:"recent"`
}

// OrderStats summarizes the orders visible to a caller.
type OrderStats struct {
	Total      int                 `json:"total"`
	ByStatus   map[OrderStatus]int `json:"byStatus"`
	ByPriority map[Priority]int    `json:"byPriority"`
	Recent     int                 `json:"recent"`
}

// NewOrderStats folds per status and priority counts into totals.
func NewOrderStats(counts []OrderCount) OrderStats {
	stats := OrderStats{
		ByStatus:   map[OrderStatus]int{},
		ByPriority: map[Priority]int{},
	}
	for _, c := range counts {
		stats.Total += c.Total
		stats.Recent += c.Recent
		stats.ByStatus[c.Status] += c.Total
		stats.ByPriority[c.Priority] += c.Total
	}
	return stats
}
