package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sourcing/models"
)

const assignmentColumns = `id, order_id, vendor_id, winning_bid_id, status, assigned_at, expected_completion,
    actual_completion, completion_notes, quality_rating, updated_at`

// CreateAssignment relies on the partial unique index allowing one
// non-cancelled assignment per order.
func (s *Storage) CreateAssignment(ctx context.Context, a models.Assignment) error {
	query := `
        INSERT INTO assignments (` + assignmentColumns + `)
        VALUES
            (:id, :order_id, :vendor_id, :winning_bid_id, :status, :assigned_at, :expected_completion,
             :actual_completion, :completion_notes, :quality_rating, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, a); err != nil {
		if isUniqueViolation(err) {
			return models.ErrAssignmentAlreadyExists
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *Storage) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	var a models.Assignment
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.ext(ctx), &a, query, id); err != nil {
		return models.Assignment{}, notFound(err, "get assignment")
	}
	return a, nil
}

// GetOpenAssignment returns nil when the order has no assigned or in-progress
// assignment.
func (s *Storage) GetOpenAssignment(ctx context.Context, orderID string) (*models.Assignment, error) {
	var open []models.Assignment
	query := `
        SELECT ` + assignmentColumns + ` FROM assignments
        WHERE order_id = $1 AND status IN ($2, $3)`
	err := sqlx.SelectContext(ctx, s.ext(ctx), &open, query,
		orderID, models.AssignmentAssigned, models.AssignmentInProgress)
	if err != nil {
		return nil, fmt.Errorf("get open assignment: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func (s *Storage) GetOrderAssignment(ctx context.Context, orderID string) (models.Assignment, error) {
	var a models.Assignment
	query := `
        SELECT ` + assignmentColumns + ` FROM assignments
        WHERE order_id = $1
        ORDER BY status = $2, assigned_at DESC
        LIMIT 1`
	if err := sqlx.GetContext(ctx, s.ext(ctx), &a, query, orderID, models.AssignmentCancelled); err != nil {
		return models.Assignment{}, notFound(err, "get order assignment")
	}
	return a, nil
}

func (s *Storage) ListVendorAssignments(ctx context.Context, vendorID string, page models.Page) ([]models.Assignment, error) {
	query := `
        SELECT ` + assignmentColumns + ` FROM assignments
        WHERE vendor_id = $1
        ORDER BY assigned_at DESC
        LIMIT NULLIF($2, 0) OFFSET $3`
	assignments := []models.Assignment{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &assignments, query, vendorID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("list vendor assignments: %w", err)
	}
	return assignments, nil
}

func (s *Storage) UpdateAssignment(ctx context.Context, a models.Assignment, expected models.AssignmentStatus) error {
	query := `
        UPDATE assignments
        SET status = $1, actual_completion = $2, completion_notes = $3, updated_at = $4
        WHERE id = $5 AND status = $6`
	res, err := s.ext(ctx).ExecContext(ctx, query,
		a.Status, a.ActualCompletion, a.CompletionNotes, a.UpdatedAt, a.ID, expected)
	return expectOne(res, err, "update assignment")
}

func (s *Storage) SetQualityRating(ctx context.Context, id string, rating int, at time.Time) error {
	query := `UPDATE assignments SET quality_rating = $1, updated_at = $2 WHERE id = $3`
	return s.updateExisting(ctx, "set quality rating", query, rating, at, id)
}

// ListCompletedWork joins the vendor's completed assignments with their
// review rating, if any.
func (s *Storage) ListCompletedWork(ctx context.Context, vendorID string) ([]models.CompletedWork, error) {
	query := `
        SELECT a.id AS assignment_id, r.rating
        FROM assignments a
        LEFT JOIN reviews r ON r.assignment_id = a.id
        WHERE a.vendor_id = $1 AND a.status = $2`
	work := []models.CompletedWork{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &work, query, vendorID, models.AssignmentCompleted); err != nil {
		return nil, fmt.Errorf("list completed work: %w", err)
	}
	return work, nil
}
