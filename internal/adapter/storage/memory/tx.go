package memory

import (
	"context"
	"errors"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Tx stages writes until Commit. Reads through a Tx see its own staged writes.
// It satisfies pgx.Tx so the memory repositories share the ports with PostgreSQL;
// the SQL methods of the embedded interface are not available.
type Tx struct {
	pgx.Tx

	store       *Store
	payments    map[uuid.UUID]domain.Payment
	refunds     map[uuid.UUID]domain.Refund
	refundOrder []uuid.UUID
	audit       []domain.AuditEntry
	txIDs       map[string]uuid.UUID
	done        bool
}

func newTx(s *Store) *Tx {
	return &Tx{
		store:    s,
		payments: make(map[uuid.UUID]domain.Payment),
		refunds:  make(map[uuid.UUID]domain.Refund),
		txIDs:    make(map[string]uuid.UUID),
	}
}

// Begin is not supported; the ledger never nests transactions.
func (t *Tx) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

// Commit applies the staged writes and releases the store lock.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.apply(t)
	t.store.release()
	return nil
}

// Rollback discards the staged writes. After Commit it returns pgx.ErrTxClosed.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.release()
	return nil
}

func (t *Tx) payment(id uuid.UUID) (domain.Payment, bool) {
	if p, ok := t.payments[id]; ok {
		return p, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.payments[id]
	return p, ok
}

func (t *Tx) refund(id uuid.UUID) (domain.Refund, bool) {
	if r, ok := t.refunds[id]; ok {
		return r, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.refunds[id]
	return r, ok
}
