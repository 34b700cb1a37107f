package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEventType names a committed ledger fact published to the event stream.
type LedgerEventType string

const (
	EventPaymentRecorded      LedgerEventType = "payment.recorded"
	EventPaymentStatusChanged LedgerEventType = "payment.status_changed"
	EventRefundIssued         LedgerEventType = "refund.issued"
	EventRefundResolved       LedgerEventType = "refund.resolved"
	EventReceiptSent          LedgerEventType = "receipt.sent"
)

// LedgerEvent is published after commit. It is informational only;
// the payments and refunds tables stay the source of truth.
type LedgerEvent struct {
	Type       LedgerEventType `json:"type"`
	PaymentID  uuid.UUID       `json:"payment_id"`
	RefundID   *uuid.UUID      `json:"refund_id,omitempty"`
	OrderID    *uuid.UUID      `json:"order_id,omitempty"`
	OldStatus  string          `json:"old_status,omitempty"`
	NewStatus  string          `json:"new_status,omitempty"`
	Amount     string          `json:"amount,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	Actor      string          `json:"actor"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// OrderPaymentStatus is the payment status mirrored onto a linked order.
// It is one of the PaymentStatus values or "partially_refunded".
type OrderPaymentStatus string

const OrderPaymentStatusPartiallyRefunded OrderPaymentStatus = "partially_refunded"

// OrderStatusFor mirrors a payment status onto an order.
func OrderStatusFor(s PaymentStatus) OrderPaymentStatus {
	return OrderPaymentStatus(s)
}
