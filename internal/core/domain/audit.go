package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionManualPayment  AuditAction = "manual_payment"
	AuditActionStatusUpdate   AuditAction = "status_update"
	AuditActionRefund         AuditAction = "refund"
	AuditActionRefundResolved AuditAction = "refund_resolved"
	AuditActionReceiptSent    AuditAction = "receipt_sent"
)

// SystemActor is the label used when an audit entry has no actor.
const SystemActor = "system"

// AuditEntry records one mutating action against a payment.
// Entries are append-only and never the source of truth for current state.
type AuditEntry struct {
	ID        uuid.UUID   `json:"id"`
	PaymentID uuid.UUID   `json:"payment_id"`
	Action    AuditAction `json:"action"`
	OldStatus *string     `json:"old_status,omitempty"`
	NewStatus *string     `json:"new_status,omitempty"`
	Details   *string     `json:"details,omitempty"` // JSON string
	Notes     *string     `json:"notes,omitempty"`
	ActorID   *uuid.UUID  `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Actor returns the actor id as a string, or "system".
func (e *AuditEntry) Actor() string {
	if e.ActorID == nil {
		return SystemActor
	}
	return e.ActorID.String()
}
