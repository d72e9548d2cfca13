package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"sourcing/models"
)

const orderColumns = `id, buyer_id, title, description, material, quantity, priority, target_price,
    target_delivery_date, status, assigned_to, held_from, created_at, updated_at,
    shipped_at, delivered_at, cancelled_at, cancelled_reason`

func (s *Storage) CreateOrder(ctx context.Context, o models.Order) error {
	query := `
        INSERT INTO orders (` + orderColumns + `)
        VALUES
            (:id, :buyer_id, :title, :description, :material, :quantity, :priority, :target_price,
             :target_delivery_date, :status, :assigned_to, :held_from, :created_at, :updated_at,
             :shipped_at, :delivered_at, :cancelled_at, :cancelled_reason)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Storage) GetOrder(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1` + forUpdate(ctx)
	if err := sqlx.GetContext(ctx, s.ext(ctx), &o, query, id); err != nil {
		return models.Order{}, notFound(err, "get order")
	}
	return o, nil
}

// UpdateOrder writes o only if the stored status still equals expected.
func (s *Storage) UpdateOrder(ctx context.Context, o models.Order, expected models.OrderStatus) error {
	query := `
        UPDATE orders
        SET status = $1, assigned_to = $2, held_from = $3, updated_at = $4,
            shipped_at = $5, delivered_at = $6, cancelled_at = $7, cancelled_reason = $8
        WHERE id = $9 AND status = $10`
	res, err := s.ext(ctx).ExecContext(ctx, query,
		o.Status, o.AssignedTo, o.HeldFrom, o.UpdatedAt,
		o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.CancelledReason,
		o.ID, expected)
	return expectOne(res, err, "update order")
}

// orderFilterWhere renders f as a WHERE clause with positional arguments.
func orderFilterWhere(f models.OrderFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Priority != "" {
		add("priority = $%d", f.Priority)
	}
	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if f.AssignedTo != "" {
		add("assigned_to = $%d", f.AssignedTo)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListOrders returns orders matching f, newest first.
func (s *Storage) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	where, args := orderFilterWhere(f)
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT NULLIF($%d, 0) OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Page.Limit, f.Page.Offset)

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// CountOrders groups the orders matching f by status and priority. Recent
// counts the ones created at or after since.
func (s *Storage) CountOrders(ctx context.Context, f models.OrderFilter, since time.Time) ([]models.OrderCount, error) {
	where, args := orderFilterWhere(f)
	args = append(args, since)
	query := fmt.Sprintf(`
        SELECT status, priority, count(*) AS total,
               count(*) FILTER (WHERE created_at >= $%d) AS recent
        FROM orders`, len(args)) + where + `
        GROUP BY status, priority`

	counts := []models.OrderCount{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	return counts, nil
}

func (s *Storage) AppendOrderHistory(ctx context.Context, ch models.OrderStatusChange) error {
	query := `
        INSERT INTO order_status_history
            (id, order_id, previous_status, new_status, event, changed_by, notes, changed_at)
        VALUES
            (:id, :order_id, :previous_status, :new_status, :event, :changed_by, :notes, :changed_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.ext(ctx), query, ch); err != nil {
		return fmt.Errorf("append order history: %w", err)
	}
	return nil
}

func (s *Storage) ListOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusChange, error) {
	query := `
        SELECT id, order_id, previous_status, new_status, event, changed_by, notes, changed_at
        FROM order_status_history
        WHERE order_id = $1
        ORDER BY changed_at, id`
	history := []models.OrderStatusChange{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &history, query, orderID); err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	return history, nil
}
