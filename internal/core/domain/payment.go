package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodPaypal       PaymentMethod = "paypal"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodOther        PaymentMethod = "other"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheck,
		PaymentMethodCard, PaymentMethodPaypal, PaymentMethodUPI, PaymentMethodOther:
		return true
	}
	return false
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// ValidForManualEntry reports whether a new manual payment may start in status s.
// refunded is reachable only through refunds.
func (s PaymentStatus) ValidForManualEntry() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionTo enforces the server-side transition rule.
// Same-status moves are rejected. refunded may only go back to completed.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if !s.Valid() || !target.Valid() || s == target {
		return false
	}
	if s == PaymentStatusRefunded {
		return target == PaymentStatusCompleted
	}
	return true
}

// Payment is a financial record of one payment attempt. Payments are never deleted.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    *uuid.UUID      `json:"customer_id,omitempty"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        PaymentMethod   `json:"payment_method"`
	Status        PaymentStatus   `json:"status"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Details       *string         `json:"payment_details,omitempty"` // JSON object
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// IsRefundable returns true if refunds may be issued against this payment.
// The remaining balance is checked separately under the row lock.
func (p *Payment) IsRefundable() bool {
	return p.Status == PaymentStatusCompleted
}

// RefundableBalance returns amount minus refunded, never below zero.
func (p *Payment) RefundableBalance(refunded decimal.Decimal) decimal.Decimal {
	balance := p.Amount.Sub(refunded)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// BuildIdempotencyKey scopes a client supplied Idempotency-Key to one customer.
func BuildIdempotencyKey(customerID uuid.UUID, key string) string {
	return "manual_payment:" + customerID.String() + ":" + key
}
