// Package db provides the PostgreSQL implementation of store.Store.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/freelance-market/internal/store"
)

var _ store.Store = (*DB)(nil)

// querier is the subset of pgxpool.Pool and pgx.Tx the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool. A DB returned to an InTx callback
// runs every statement on that transaction instead.
type DB struct {
	pool *pgxpool.Pool
	q    querier
	tx   bool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil && !db.tx {
		db.pool.Close()
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// InTx runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if db.tx {
		return fn(db)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&DB{pool: db.pool, q: tx, tx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isDuplicateKey reports whether err is a unique_violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// statusArgs converts a slice of status enums to a text[] argument.
func statusArgs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// limitArg maps a zero limit to NULL, which LIMIT treats as unbounded.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

// stampColumn names the timestamp column a status change writes, or "" for none.
func stampColumn(status string) string {
	switch status {
	case "shortlisted":
		return "shortlisted_at"
	case "accepted":
		return "accepted_at"
	case "rejected":
		return "rejected_at"
	case "withdrawn":
		return "withdrawn_at"
	case "escrow":
		return "escrowed_at"
	case "released":
		return "released_at"
	case "refunded":
		return "refunded_at"
	case "disputed":
		return "disputed_at"
	}
	return ""
}

// casStatus runs a status compare-and-swap on table, stamping the timestamp
// column that belongs to the target status.
func (db *DB) casStatus(ctx context.Context, table string, id uuid.UUID, from []string, to string, at time.Time) (bool, error) {
	set := "status = $3, updated_at = $4"
	if col := stampColumn(to); col != "" {
		set += ", " + col + " = $4"
	}
	tag, err := db.q.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND status = ANY($2)`, table, set),
		id, from, to, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
