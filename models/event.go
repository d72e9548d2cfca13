package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventBidSubmitted        EventKind = "bid_submitted"
	EventBidWithdrawn        EventKind = "bid_withdrawn"
	EventBidAccepted         EventKind = "bid_accepted"
	EventBidRejected         EventKind = "bid_rejected"
	EventBidExpired          EventKind = "bid_expired"
	EventAssignmentStarted   EventKind = "assignment_started"
	EventAssignmentCompleted EventKind = "assignment_completed"
	EventAssignmentCancelled EventKind = "assignment_cancelled"
	EventOrderStatusChanged  EventKind = "order_status_changed"
	EventOrderCancelled      EventKind = "order_cancelled"
	EventReviewSubmitted     EventKind = "review_submitted"
	EventApplicationReviewed EventKind = "vendor_application_reviewed"
)

type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventSent    EventStatus = "sent"
	EventFailed  EventStatus = "failed"
	EventDead    EventStatus = "dead"
)

// Event is a lifecycle notification waiting in the outbox for delivery.
type Event struct {
	ID            string      `db:"id" json:"id"`
	Kind          EventKind   `db:"kind" json:"kind"`
	RecipientID   string      `db:"recipient_id" json:"recipientId"`
	OrderID       *string     `db:"order_id" json:"orderId,omitempty"`
	BidID         *string     `db:"bid_id" json:"bidId,omitempty"`
	AssignmentID  *string     `db:"assignment_id" json:"assignmentId,omitempty"`
	Title         string      `db:"title" json:"title"`
	Message       string      `db:"message" json:"message"`
	Payload       JSON        `db:"payload" json:"payload,omitempty"`
	Status        EventStatus `db:"status" json:"-"`
	Attempts      int         `db:"attempts" json:"-"`
	NextAttemptAt *time.Time  `db:"next_attempt_at" json:"-"`
	LastError     *string     `db:"last_error" json:"-"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	SentAt        *time.Time  `db:"sent_at" json:"-"`
}

// JSON is a raw document stored in a jsonb column.
type JSON json.RawMessage

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan copies the driver buffer, which is reused between rows.
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = bytes.Clone(v)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("models.JSON: cannot scan %T", src)
	}
	return nil
}
