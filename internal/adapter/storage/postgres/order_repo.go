package postgres

import (
	"context"
	"fmt"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// OrderRepo implements ports.OrderCollaborator against the storefront orders table.
// The ledger only ever touches orders.payment_status.
type OrderRepo struct {
	pool Pool
}

func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// SetPaymentStatus mirrors a payment status onto the order row.
func (r *OrderRepo) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderPaymentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $1 WHERE id = $2`,
		status, orderID,
	)
	if err != nil {
		return fmt.Errorf("update order payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}
	return nil
}
