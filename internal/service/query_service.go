package service

import (
	"context"
	"fmt"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// queryService implements ports.LedgerQueryService.
type queryService struct {
	payments ports.PaymentRepository
	refunds  ports.RefundRepository
	audit    ports.AuditRepository
}

// NewQueryService creates a new read-side service.
func NewQueryService(
	payments ports.PaymentRepository,
	refunds ports.RefundRepository,
	audit ports.AuditRepository,
) ports.LedgerQueryService {
	return &queryService{
		payments: payments,
		refunds:  refunds,
		audit:    audit,
	}
}

// GetPayment returns the payment with its refund totals.
func (s *queryService) GetPayment(ctx context.Context, id uuid.UUID) (*ports.PaymentView, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("Payment")
	}

	refunded, err := s.refunds.SumCompleted(ctx, nil, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	return &ports.PaymentView{
		Payment:           payment,
		RefundedTotal:     refunded,
		RefundableBalance: payment.RefundableBalance(refunded),
	}, nil
}

// ListPayments returns a paginated list of payments.
func (s *queryService) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, 0, apperror.Validation(fmt.Sprintf("unsupported payment status %q", *params.Status))
	}
	if params.Method != nil && !params.Method.Valid() {
		return nil, 0, apperror.Validation(fmt.Sprintf("unsupported payment method %q", *params.Method))
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, 0, apperror.Validation("invalid date range: to is before from")
	}
	payments, total, err := s.payments.List(ctx, params.Normalized())
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return payments, total, nil
}

// ListRefunds returns the refunds of a payment in creation order.
func (s *queryService) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	if err := s.ensurePayment(ctx, paymentID); err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return refunds, nil
}

// ListAuditTrail returns the audit entries of a payment, oldest first.
func (s *queryService) ListAuditTrail(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditEntry, error) {
	if err := s.ensurePayment(ctx, paymentID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return entries, nil
}

func (s *queryService) ensurePayment(ctx context.Context, id uuid.UUID) error {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return apperror.InternalError(err)
	}
	if payment == nil {
		return apperror.ErrNotFound("Payment")
	}
	return nil
}
