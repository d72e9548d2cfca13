package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sourcing/models"
)

const eventColumns = `id, kind, recipient_id, order_id, bid_id, assignment_id, title, message, payload,
    status, attempts, next_attempt_at, last_error, created_at, sent_at`

// AppendEvents writes events to the outbox in the caller's transaction.
func (s *Storage) AppendEvents(ctx context.Context, events ...models.Event) error {
	if len(events) == 0 {
		return nil
	}
	query := `
        INSERT INTO events (` + eventColumns + `)
        VALUES
            (:id, :kind, :recipient_id, :order_id, :bid_id, :assignment_id, :title, :message, :payload,
             :status, :attempts, :next_attempt_at, :last_error, :created_at, :sent_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, events); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// PendingEvents returns up to limit undelivered events that are due at now,
// oldest first. Rows are skipped while another relay holds them.
func (s *Storage) PendingEvents(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	query := `
        SELECT ` + eventColumns + ` FROM events
        WHERE status IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= $3)
        ORDER BY created_at, id
        LIMIT $4` + skipLocked(ctx)
	events := []models.Event{}
	err := sqlx.SelectContext(ctx, s.ext(ctx), &events, query,
		models.EventPending, models.EventFailed, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	return events, nil
}

func skipLocked(ctx context.Context) string {
	if txFromContext(ctx) != nil {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

func (s *Storage) MarkEventSent(ctx context.Context, id string, at time.Time) error {
	query := `
        UPDATE events
        SET status = $1, sent_at = $2, attempts = attempts + 1, next_attempt_at = NULL, last_error = NULL
        WHERE id = $3`
	return s.updateExisting(ctx, "mark event sent", query, models.EventSent, at, id)
}

// MarkEventFailed records a failed delivery attempt. status is EventFailed
// while retries remain and EventDead after the last one.
func (s *Storage) MarkEventFailed(ctx context.Context, id string, attempts int, status models.EventStatus, next time.Time, lastErr string) error {
	query := `
        UPDATE events
        SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4
        WHERE id = $5`
	return s.updateExisting(ctx, "mark event failed", query, status, attempts, next, lastErr, id)
}
