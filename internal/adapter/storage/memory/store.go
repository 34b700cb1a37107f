// Package memory is an in-process implementation of the ledger repositories.
// It backs database.driver=memory and the service level tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

// Store holds committed ledger state. Only one transaction is open at a time,
// which gives the same guarantee as the payment row lock in PostgreSQL.
type Store struct {
	lock chan struct{}

	payments    map[uuid.UUID]domain.Payment
	refunds     map[uuid.UUID]domain.Refund
	refundOrder []uuid.UUID
	audit       []domain.AuditEntry
	txIDs       map[string]uuid.UUID

	mu sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lock:     make(chan struct{}, 1),
		payments: make(map[uuid.UUID]domain.Payment),
		refunds:  make(map[uuid.UUID]domain.Refund),
		txIDs:    make(map[string]uuid.UUID),
	}
}

// Begin implements ports.DBTransactor. It blocks until the previous
// transaction commits or rolls back, or ctx is done.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return newTx(s), nil
}

func (s *Store) release() {
	<-s.lock
}

// apply publishes the staged writes of t.
func (s *Store) apply(t *Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range t.payments {
		s.payments[id] = p
	}
	for k, id := range t.txIDs {
		s.txIDs[k] = id
	}
	for id, r := range t.refunds {
		s.refunds[id] = r
	}
	s.refundOrder = append(s.refundOrder, t.refundOrder...)
	s.audit = append(s.audit, t.audit...)
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}
