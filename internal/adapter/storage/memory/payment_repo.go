package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	store *Store
}

func NewPaymentRepo(store *Store) *PaymentRepo {
	return &PaymentRepo{store: store}
}

func (r *PaymentRepo) Create(_ context.Context, tx pgx.Tx, p *domain.Payment) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, exists := t.payment(p.ID); exists {
		return fmt.Errorf("insert payment %s: %w", p.ID, ports.ErrDuplicate)
	}
	if p.TransactionID != nil {
		if _, staged := t.txIDs[*p.TransactionID]; staged {
			return fmt.Errorf("insert payment: transaction id %q: %w", *p.TransactionID, ports.ErrDuplicate)
		}
		r.store.mu.RLock()
		_, committed := r.store.txIDs[*p.TransactionID]
		r.store.mu.RUnlock()
		if committed {
			return fmt.Errorf("insert payment: transaction id %q: %w", *p.TransactionID, ports.ErrDuplicate)
		}
		t.txIDs[*p.TransactionID] = p.ID
	}
	t.payments[p.ID] = *p
	return nil
}

func (r *PaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetByIDForUpdate reads through the transaction, which already holds the store lock.
func (r *PaymentRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	p, ok := t.payment(id)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PaymentRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, updatedAt time.Time) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	p, ok := t.payment(id)
	if !ok {
		return fmt.Errorf("payment not found: %s", id)
	}
	p.Status = status
	p.UpdatedAt = &updatedAt
	t.payments[id] = p
	return nil
}

// List returns payments newest first.
func (r *PaymentRepo) List(_ context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	r.store.mu.RLock()
	matched := make([]domain.Payment, 0, len(r.store.payments))
	for _, p := range r.store.payments {
		if matches(p, params) {
			matched = append(matched, p)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	offset := (params.Page - 1) * params.PageSize
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Payment{}, total, nil
	}
	end := offset + params.PageSize
	if params.PageSize <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func matches(p domain.Payment, params ports.PaymentListParams) bool {
	if params.Status != nil && p.Status != *params.Status {
		return false
	}
	if params.Method != nil && p.Method != *params.Method {
		return false
	}
	if params.CustomerID != nil && (p.CustomerID == nil || *p.CustomerID != *params.CustomerID) {
		return false
	}
	if params.OrderID != nil && (p.OrderID == nil || *p.OrderID != *params.OrderID) {
		return false
	}
	if params.From != nil && p.CreatedAt.Before(*params.From) {
		return false
	}
	if params.To != nil && p.CreatedAt.After(*params.To) {
		return false
	}
	return true
}
