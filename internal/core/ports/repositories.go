package ports

import (
	"context"
	"errors"
	"time"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate is returned by repositories when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrLockTimeout is returned when a row lock could not be acquired in time.
	ErrLockTimeout = errors.New("row lock wait timed out")
)

// PaymentRepository defines persistence operations for payments.
// Methods accepting pgx.Tx are used inside transaction blocks; ForUpdate variants take a row lock.
// Lookups return (nil, nil) when the row does not exist.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentStatus, updatedAt time.Time) error
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	Status     *domain.PaymentStatus
	Method     *domain.PaymentMethod
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalized applies the default page and caps the page size.
func (p PaymentListParams) Normalized() PaymentListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// RefundRepository defines persistence operations for refunds.
type RefundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Refund, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RefundStatus, updatedAt time.Time) error
	// SumCompleted returns the total of completed refunds for a payment.
	// A nil tx reads outside any transaction.
	SumCompleted(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (decimal.Decimal, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)
}

// AuditRepository is the append-only audit trail. It has no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
	// ListByPayment returns entries oldest first.
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditEntry, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
