package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sourcing/internal/config"
	"sourcing/internal/engine"
	"sourcing/models"
)

var _ engine.Store = (*Storage)(nil)

// Storage is the Postgres implementation of the engine store.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Connect opens the pool and checks the connection.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return conn, nil
}

type txKey struct{}

// WithTx runs fn in a transaction carried by the context. Nested calls join
// the outer transaction.
func (s *Storage) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// ext returns the transaction in ctx, or the pool outside one.
func (s *Storage) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// forUpdate locks selected rows when running inside a transaction.
func forUpdate(ctx context.Context) string {
	if txFromContext(ctx) != nil {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

// notFound maps a missing row or a malformed id to models.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

// expectOne turns a conditional update that matched nothing into
// models.ErrAlreadyFinalized.
func expectOne(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return models.ErrAlreadyFinalized
	}
	return nil
}

// updateExisting runs an unconditional update of one row by id and reports a
// missing row as models.ErrNotFound.
func (s *Storage) updateExisting(ctx context.Context, what, query string, args ...any) error {
	res, err := s.ext(ctx).ExecContext(ctx, query, args...)
	if err := expectOne(res, err, what); errors.Is(err, models.ErrAlreadyFinalized) {
		return models.ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

// Ping is used by the health endpoint.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
