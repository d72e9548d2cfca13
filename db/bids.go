package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sourcing/models"
)

const bidColumns = `id, order_id, vendor_id, amount, delivery_days, notes, status, withdraw_reason,
    submitted_at, expires_at, updated_at`

// bidRanking is the canonical ordering of bids, see models.Bid.RanksBefore.
const bidRanking = `ORDER BY amount ASC, submitted_at ASC, id ASC`

// CreateBid relies on the partial unique index over active bids per
// (order, vendor). Losing that race surfaces as ErrAlreadyFinalized.
func (s *Storage) CreateBid(ctx context.Context, b models.Bid) error {
	query := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES
            (:id, :order_id, :vendor_id, :amount, :delivery_days, :notes, :status, :withdraw_reason,
             :submitted_at, :expires_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, b); err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyFinalized
		}
		return fmt.Errorf("create bid: %w", err)
	}
	return nil
}

func (s *Storage) GetBid(ctx context.Context, id string) (models.Bid, error) {
	var b models.Bid
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.ext(ctx), &b, query, id); err != nil {
		return models.Bid{}, notFound(err, "get bid")
	}
	return b, nil
}

// GetActiveBid returns nil when the vendor has no active bid on the order.
func (s *Storage) GetActiveBid(ctx context.Context, orderID, vendorID string) (*models.Bid, error) {
	var bids []models.Bid
	query := `
        SELECT ` + bidColumns + ` FROM bids
        WHERE order_id = $1 AND vendor_id = $2 AND status = $3` + forUpdate(ctx)
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &bids, query, orderID, vendorID, models.BidActive); err != nil {
		return nil, fmt.Errorf("get active bid: %w", err)
	}
	if len(bids) == 0 {
		return nil, nil
	}
	return &bids[0], nil
}

// TransitionBid moves a bid from one status to another. It fails with
// ErrAlreadyFinalized when the bid is no longer in from.
func (s *Storage) TransitionBid(ctx context.Context, id string, from, to models.BidStatus, reason *string, at time.Time) error {
	query := `
        UPDATE bids
        SET status = $1, withdraw_reason = COALESCE($2, withdraw_reason), updated_at = $3
        WHERE id = $4 AND status = $5`
	res, err := s.ext(ctx).ExecContext(ctx, query, to, reason, at, id, from)
	return expectOne(res, err, "transition bid")
}

// RejectActiveBids rejects every active bid of the order except the given one
// and returns the rejected bids.
func (s *Storage) RejectActiveBids(ctx context.Context, orderID string, except *string, at time.Time) ([]models.Bid, error) {
	query := `
        UPDATE bids
        SET status = $1, updated_at = $2
        WHERE order_id = $3 AND status = $4 AND ($5::uuid IS NULL OR id <> $5::uuid)
        RETURNING ` + bidColumns
	rejected := []models.Bid{}
	err := sqlx.SelectContext(ctx, s.ext(ctx), &rejected, query,
		models.BidRejected, at, orderID, models.BidActive, except)
	if err != nil {
		return nil, fmt.Errorf("reject active bids: %w", err)
	}
	models.SortBids(rejected)
	return rejected, nil
}

// ExpireBids expires every active bid due at or before now.
func (s *Storage) ExpireBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	query := `
        UPDATE bids
        SET status = $1, updated_at = $2
        WHERE status = $3 AND expires_at <= $2
        RETURNING ` + bidColumns
	expired := []models.Bid{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &expired, query, models.BidExpired, now, models.BidActive); err != nil {
		return nil, fmt.Errorf("expire bids: %w", err)
	}
	models.SortBids(expired)
	return expired, nil
}

func (s *Storage) ListActiveBids(ctx context.Context, orderID string, now time.Time) ([]models.Bid, error) {
	query := `
        SELECT ` + bidColumns + ` FROM bids
        WHERE order_id = $1 AND status = $2 AND expires_at > $3
        ` + bidRanking
	bids := []models.Bid{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &bids, query, orderID, models.BidActive, now); err != nil {
		return nil, fmt.Errorf("list active bids: %w", err)
	}
	return bids, nil
}

func (s *Storage) ListVendorBids(ctx context.Context, vendorID string, page models.Page) ([]models.Bid, error) {
	query := `
        SELECT ` + bidColumns + ` FROM bids
        WHERE vendor_id = $1
        ORDER BY submitted_at DESC
        LIMIT NULLIF($2, 0) OFFSET $3`
	bids := []models.Bid{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &bids, query, vendorID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("list vendor bids: %w", err)
	}
	return bids, nil
}
