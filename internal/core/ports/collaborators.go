package ports

import (
	"context"
	"time"

	"payment-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// OrderCollaborator mirrors payment status onto the linked order. Best-effort.
type OrderCollaborator interface {
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderPaymentStatus) error
}

// Notifier hands customer notifications to the delivery pipeline. Fire-and-forget
// except for SendReceipt, whose failure is reported to the caller.
type Notifier interface {
	SendReceipt(ctx context.Context, payment *domain.Payment) error
	SendStatusChangeNotice(ctx context.Context, payment *domain.Payment, oldStatus domain.PaymentStatus) error
	SendRefundNotice(ctx context.Context, payment *domain.Payment, refund *domain.Refund) error
}

// NotificationDeliverer sends one notification to the mail/SMS gateway.
// The queue worker calls it; retries belong to the queue.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// EventPublisher streams committed ledger facts to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// IdempotencyCache is the Redis-layer idempotency check for manual entries.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimitStore counts requests per key in a fixed window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}
