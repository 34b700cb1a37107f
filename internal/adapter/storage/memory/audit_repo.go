package memory

import (
	"context"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. Entries can only be appended.
type AuditRepo struct {
	store *Store
}

func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Append(_ context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	t.audit = append(t.audit, *entry)
	return nil
}

func (r *AuditRepo) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entries := []domain.AuditEntry{}
	for _, e := range r.store.audit {
		if e.PaymentID == paymentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
