package queue

import (
	"context"
	"fmt"
	"time"

	"payment-ledger/config"
	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const defaultQueue = "notifications"

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier implements ports.Notifier by enqueuing one task per notification.
type Notifier struct {
	client   Enqueuer
	queue    string
	maxRetry int
	log      zerolog.Logger
	now      func() time.Time
}

// NewNotifier creates a notifier over client.
func NewNotifier(client Enqueuer, queue string, maxRetry int, log zerolog.Logger) *Notifier {
	if queue == "" {
		queue = defaultQueue
	}
	return &Notifier{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
		log:      log,
		now:      time.Now,
	}
}

// NewClient returns the asynq client for cfg. The caller closes it.
func NewClient(cfg config.QueueConfig) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// RedisOpt builds the asynq connection options for cfg.
func RedisOpt(cfg config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (n *Notifier) SendReceipt(ctx context.Context, payment *domain.Payment) error {
	return n.enqueue(ctx, domain.NewReceiptNotification(payment, n.now()))
}

func (n *Notifier) SendStatusChangeNotice(ctx context.Context, payment *domain.Payment, oldStatus domain.PaymentStatus) error {
	return n.enqueue(ctx, domain.NewStatusChangeNotification(payment, oldStatus, n.now()))
}

func (n *Notifier) SendRefundNotice(ctx context.Context, payment *domain.Payment, refund *domain.Refund) error {
	return n.enqueue(ctx, domain.NewRefundNotification(payment, refund, n.now()))
}

func (n *Notifier) enqueue(ctx context.Context, notification domain.Notification) error {
	task, err := NewNotificationTask(notification)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(n.queue)}
	if n.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.maxRetry))
	}

	info, err := n.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	n.log.Debug().
		Str("task_id", info.ID).
		Str("task_type", task.Type()).
		Str("payment_id", notification.PaymentID.String()).
		Msg("notification enqueued")
	return nil
}

// NoopNotifier is used when the queue is disabled. It only logs.
type NoopNotifier struct {
	log zerolog.Logger
}

func NewNoopNotifier(log zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: log}
}

func (n *NoopNotifier) SendReceipt(_ context.Context, payment *domain.Payment) error {
	n.skip(domain.NotificationReceipt, payment)
	return nil
}

func (n *NoopNotifier) SendStatusChangeNotice(_ context.Context, payment *domain.Payment, _ domain.PaymentStatus) error {
	n.skip(domain.NotificationStatusChange, payment)
	return nil
}

func (n *NoopNotifier) SendRefundNotice(_ context.Context, payment *domain.Payment, _ *domain.Refund) error {
	n.skip(domain.NotificationRefund, payment)
	return nil
}

func (n *NoopNotifier) skip(kind domain.NotificationKind, payment *domain.Payment) {
	n.log.Info().
		Str("kind", string(kind)).
		Str("payment_id", payment.ID.String()).
		Msg("notification queue disabled, skipping")
}

var (
	_ ports.Notifier = (*Notifier)(nil)
	_ ports.Notifier = (*NoopNotifier)(nil)
)
