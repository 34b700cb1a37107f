package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind selects the customer message the gateway renders.
type NotificationKind string

const (
	NotificationReceipt      NotificationKind = "receipt"
	NotificationStatusChange NotificationKind = "status_change"
	NotificationRefund       NotificationKind = "refund"
)

// Notification is the payload handed to the mail/SMS gateway.
// Rendering the message is the gateway's job.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	PaymentID    uuid.UUID        `json:"payment_id"`
	CustomerID   *uuid.UUID       `json:"customer_id,omitempty"`
	OrderID      *uuid.UUID       `json:"order_id,omitempty"`
	Amount       string           `json:"amount"`
	Currency     string           `json:"currency"`
	Status       PaymentStatus    `json:"status"`
	OldStatus    PaymentStatus    `json:"old_status,omitempty"`
	RefundID     *uuid.UUID       `json:"refund_id,omitempty"`
	RefundAmount string           `json:"refund_amount,omitempty"`
	RefundReason string           `json:"refund_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newNotification(kind NotificationKind, p *Payment, at time.Time) Notification {
	return Notification{
		Kind:       kind,
		PaymentID:  p.ID,
		CustomerID: p.CustomerID,
		OrderID:    p.OrderID,
		Amount:     FormatAmount(p.Amount),
		Currency:   p.Currency,
		Status:     p.Status,
		CreatedAt:  at.UTC(),
	}
}

func NewReceiptNotification(p *Payment, at time.Time) Notification {
	return newNotification(NotificationReceipt, p, at)
}

func NewStatusChangeNotification(p *Payment, oldStatus PaymentStatus, at time.Time) Notification {
	n := newNotification(NotificationStatusChange, p, at)
	n.OldStatus = oldStatus
	return n
}

func NewRefundNotification(p *Payment, r *Refund, at time.Time) Notification {
	n := newNotification(NotificationRefund, p, at)
	id := r.ID
	n.RefundID = &id
	n.RefundAmount = FormatAmount(r.Amount)
	n.RefundReason = r.Reason()
	return n
}
