package ports

import (
	"context"
	"time"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(timestamp int64, body string) string
}

// TokenService handles JWT token operations for back-office actors.
type TokenService interface {
	Generate(actor domain.Actor) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ActorID uuid.UUID
	Role    domain.Role
}

// Actor converts the claims into the request-scoped actor.
func (c *TokenClaims) Actor() *domain.Actor {
	return &domain.Actor{ID: c.ActorID, Role: c.Role}
}

// --- Service Ports (Business Logic) ---

// LifecycleService is the only mutation point for payments and refunds.
// Every successful mutation writes its audit entry in the same transaction.
type LifecycleService interface {
	RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*ManualPaymentResult, error)
	UpdateStatus(ctx context.Context, req StatusUpdateRequest) (*StatusUpdateResult, error)
	IssueRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	ResolveRefund(ctx context.Context, req ResolveRefundRequest) (*RefundResult, error)
	SendReceipt(ctx context.Context, paymentID uuid.UUID, actor *domain.Actor) (*domain.AuditEntry, error)
	GetRefundableBalance(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)
}

// ManualPaymentRequest holds validated input for recording an offline payment.
type ManualPaymentRequest struct {
	CustomerID     uuid.UUID
	OrderID        *uuid.UUID
	Method         domain.PaymentMethod
	Currency       string
	Amount         decimal.Decimal
	Status         domain.PaymentStatus
	TransactionID  *string
	Details        map[string]any
	Notes          *string
	IdempotencyKey string
	Actor          *domain.Actor
}

// ManualPaymentResult is returned by RecordManualPayment.
// Warnings lists post-commit side effects that did not complete.
type ManualPaymentResult struct {
	Payment  *domain.Payment `json:"payment"`
	Warnings []string        `json:"warnings,omitempty"`
	Replayed bool            `json:"-"`
}

// StatusUpdateRequest holds input for a payment status change.
type StatusUpdateRequest struct {
	PaymentID         uuid.UUID
	NewStatus         domain.PaymentStatus
	Notes             *string
	Actor             *domain.Actor
	NotifyCustomer    bool
	UpdateLinkedOrder bool
}

type StatusUpdateResult struct {
	Payment   *domain.Payment      `json:"payment"`
	OldStatus domain.PaymentStatus `json:"old_status"`
	Warnings  []string             `json:"warnings,omitempty"`
}

// RefundRequest holds input for refund issuance.
// Deferred creates the refund as pending (e.g. a bank transfer awaiting settlement).
type RefundRequest struct {
	PaymentID         uuid.UUID
	Amount            decimal.Decimal
	ReasonCategory    domain.RefundReason
	CustomReason      *string
	Method            domain.RefundMethod
	Notes             *string
	Actor             *domain.Actor
	NotifyCustomer    bool
	UpdateOrderStatus bool
	Deferred          bool
}

// ResolveRefundRequest settles a pending refund as completed or failed.
type ResolveRefundRequest struct {
	RefundID          uuid.UUID
	Status            domain.RefundStatus
	Notes             *string
	Actor             *domain.Actor
	NotifyCustomer    bool
	UpdateOrderStatus bool
}

// RefundResult carries the refund and the balance recomputed after commit.
type RefundResult struct {
	Refund            *domain.Refund       `json:"refund"`
	RefundableBalance decimal.Decimal      `json:"refundable_balance"`
	PaymentStatus     domain.PaymentStatus `json:"payment_status"`
	Warnings          []string             `json:"warnings,omitempty"`
}

// LedgerQueryService is the read-only side of the ledger.
type LedgerQueryService interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*PaymentView, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)
	ListAuditTrail(ctx context.Context, paymentID uuid.UUID) ([]domain.AuditEntry, error)
}

// PaymentView is a payment with its refund totals.
type PaymentView struct {
	Payment           *domain.Payment `json:"payment"`
	RefundedTotal     decimal.Decimal `json:"refunded_total"`
	RefundableBalance decimal.Decimal `json:"refundable_balance"`
}
