package memory

import (
	"context"
	"sync"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// OrderStore is an in-process order collaborator. It remembers the last
// payment status mirrored onto each order.
type OrderStore struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]domain.OrderPaymentStatus
}

func NewOrderStore() *OrderStore {
	return &OrderStore{statuses: make(map[uuid.UUID]domain.OrderPaymentStatus)}
}

func (o *OrderStore) SetPaymentStatus(_ context.Context, orderID uuid.UUID, status domain.OrderPaymentStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[orderID] = status
	return nil
}

// PaymentStatus returns the mirrored status of an order.
func (o *OrderStore) PaymentStatus(orderID uuid.UUID) (domain.OrderPaymentStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.statuses[orderID]
	return s, ok
}
