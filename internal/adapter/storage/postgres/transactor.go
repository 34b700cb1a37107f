package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
type Transactor struct {
	pool        Pool
	lockTimeout time.Duration
}

// NewTransactor creates a new Transactor wrapping the connection pool.
// A positive lockTimeout bounds how long SELECT ... FOR UPDATE waits for the payment row.
func NewTransactor(pool Pool, lockTimeout time.Duration) *Transactor {
	return &Transactor{pool: pool, lockTimeout: lockTimeout}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	if t.lockTimeout <= 0 {
		return tx, nil
	}

	// SET does not accept bind parameters.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}
