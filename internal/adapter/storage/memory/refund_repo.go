package memory

import (
	"context"
	"fmt"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	store *Store
}

func NewRefundRepo(store *Store) *RefundRepo {
	return &RefundRepo{store: store}
}

func (r *RefundRepo) Create(_ context.Context, tx pgx.Tx, refund *domain.Refund) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if _, exists := t.refund(refund.ID); exists {
		return fmt.Errorf("insert refund %s: %w", refund.ID, ports.ErrDuplicate)
	}
	if _, ok := t.payment(refund.PaymentID); !ok {
		return fmt.Errorf("insert refund: payment %s does not exist", refund.PaymentID)
	}
	t.refunds[refund.ID] = *refund
	t.refundOrder = append(t.refundOrder, refund.ID)
	return nil
}

func (r *RefundRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Refund, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	refund, ok := r.store.refunds[id]
	if !ok {
		return nil, nil
	}
	return &refund, nil
}

func (r *RefundRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	refund, ok := t.refund(id)
	if !ok {
		return nil, nil
	}
	return &refund, nil
}

func (r *RefundRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, updatedAt time.Time) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	refund, ok := t.refund(id)
	if !ok {
		return fmt.Errorf("refund not found: %s", id)
	}
	refund.Status = status
	refund.UpdatedAt = &updatedAt
	t.refunds[id] = refund
	return nil
}

// SumCompleted includes the staged writes of tx when tx is not nil.
func (r *RefundRepo) SumCompleted(_ context.Context, tx pgx.Tx, paymentID uuid.UUID) (decimal.Decimal, error) {
	var staged map[uuid.UUID]domain.Refund
	if tx != nil {
		t, err := asTx(tx)
		if err != nil {
			return decimal.Zero, err
		}
		staged = t.refunds
	}

	total := decimal.Zero
	add := func(refund domain.Refund) {
		if refund.PaymentID == paymentID && refund.Status == domain.RefundStatusCompleted {
			total = total.Add(refund.Amount)
		}
	}

	r.store.mu.RLock()
	for id, refund := range r.store.refunds {
		if _, overridden := staged[id]; overridden {
			continue
		}
		add(refund)
	}
	r.store.mu.RUnlock()

	for _, refund := range staged {
		add(refund)
	}
	return total, nil
}

// ListByPayment returns refunds in creation order.
func (r *RefundRepo) ListByPayment(_ context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	refunds := []domain.Refund{}
	for _, id := range r.store.refundOrder {
		if refund := r.store.refunds[id]; refund.PaymentID == paymentID {
			refunds = append(refunds, refund)
		}
	}
	return refunds, nil
}
