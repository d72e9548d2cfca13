package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidActive    BidStatus = "active"
	BidWithdrawn BidStatus = "withdrawn"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidExpired   BidStatus = "expired"
)

func (s BidStatus) Valid() bool {
	switch s {
	case BidActive, BidWithdrawn, BidAccepted, BidRejected, BidExpired:
		return true
	default:
		return false
	}
}

// Terminal statuses never go back to active.
func (s BidStatus) Terminal() bool {
	return s.Valid() && s != BidActive
}

// Why a bid left the active state through withdrawal.
const (
	WithdrawByVendor   = "vendor"
	WithdrawSuperseded = "superseded"
)

// Bid is a vendor's priced, timed offer against an order.
type Bid struct {
	ID             string          `db:"id" json:"id"`
	OrderID        string          `db:"order_id" json:"orderId"`
	VendorID       string          `db:"vendor_id" json:"vendorId"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	DeliveryDays   int             `db:"delivery_days" json:"deliveryDays"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	Status         BidStatus       `db:"status" json:"status"`
	WithdrawReason *string         `db:"withdraw_reason" json:"withdrawReason,omitempty"`
	SubmittedAt    time.Time       `db:"submitted_at" json:"submittedAt"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expiresAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Live reports whether the bid is active and not yet past its expiry at now.
func (b Bid) Live(now time.Time) bool {
	return b.Status == BidActive && b.ExpiresAt.After(now)
}

// RanksBefore is the canonical bid ordering: lower amount first, then earlier
// submission, then id.
func (b Bid) RanksBefore(other Bid) bool {
	if c := b.Amount.Cmp(other.Amount); c != 0 {
		return c < 0
	}
	if !b.SubmittedAt.Equal(other.SubmittedAt) {
		return b.SubmittedAt.Before(other.SubmittedAt)
	}
	return b.ID < other.ID
}

// SortBids orders bids by RanksBefore.
func SortBids(bids []Bid) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].RanksBefore(bids[j]) })
}
