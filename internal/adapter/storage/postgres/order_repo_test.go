package postgres

import (
	"context"
	"testing"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepo_SetPaymentStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	orderID := uuid.New()

	mock.ExpectExec("UPDATE orders SET payment_status").
		WithArgs(domain.OrderPaymentStatusPartiallyRefunded, orderID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.SetPaymentStatus(context.Background(), orderID, domain.OrderPaymentStatusPartiallyRefunded)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_SetPaymentStatus_UnknownOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectExec("UPDATE orders SET payment_status").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetPaymentStatus(context.Background(), uuid.New(), domain.OrderStatusFor(domain.PaymentStatusCompleted))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "order not found")
}
