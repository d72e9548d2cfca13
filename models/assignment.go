package models

import "time"

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentAssigned, AssignmentInProgress, AssignmentCompleted, AssignmentCancelled:
		return true
	default:
		return false
	}
}

// Open assignments still bind the order to the vendor.
func (s AssignmentStatus) Open() bool {
	return s == AssignmentAssigned || s == AssignmentInProgress
}

// CanMoveTo allows assigned -> in_progress -> completed and
// assigned|in_progress -> cancelled.
func (s AssignmentStatus) CanMoveTo(to AssignmentStatus) bool {
	switch {
	case s == AssignmentAssigned && to == AssignmentInProgress:
		return true
	case s == AssignmentInProgress && to == AssignmentCompleted:
		return true
	case s.Open() && to == AssignmentCancelled:
		return true
	default:
		return false
	}
}

// Assignment binds an order to the vendor whose bid was accepted.
type Assignment struct {
	ID                 string           `db:"id" json:"id"`
	OrderID            string           `db:"order_id" json:"orderId"`
	VendorID           string           `db:"vendor_id" json:"vendorId"`
	WinningBidID       string           `db:"winning_bid_id" json:"winningBidId"`
	Status             AssignmentStatus `db:"status" json:"status"`
	AssignedAt         time.Time        `db:"assigned_at" json:"assignedAt"`
	ExpectedCompletion time.Time        `db:"expected_completion" json:"expectedCompletion"`
	ActualCompletion   *time.Time       `db:"actual_completion" json:"actualCompletion,omitempty"`
	CompletionNotes    *string          `db:"completion_notes" json:"completionNotes,omitempty"`
	QualityRating      *int             `db:"quality_rating" json:"qualityRating,omitempty"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updatedAt"`
}

// CompletedWork is one completed assignment with the rating of its review, if any.
type CompletedWork struct {
	AssignmentID string `db:"assignment_id"`
	Rating       *int   `db:"rating"`
}
