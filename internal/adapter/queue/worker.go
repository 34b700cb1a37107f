package queue

import (
	"context"
	"fmt"

	"payment-ledger/config"
	"payment-ledger/internal/core/ports"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Handler delivers queued notifications.
type Handler struct {
	deliverer ports.NotificationDeliverer
	log       zerolog.Logger
}

func NewHandler(deliverer ports.NotificationDeliverer, log zerolog.Logger) *Handler {
	return &Handler{deliverer: deliverer, log: log}
}

// Register binds every notification task type to the handler.
func (h *Handler) Register(mux *asynq.ServeMux) {
	for _, taskType := range TaskTypes {
		mux.HandleFunc(taskType, h.ProcessTask)
	}
}

// ProcessTask decodes and delivers one notification. A returned error makes
// asynq retry the task unless it wraps asynq.SkipRetry.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	n, err := ParseNotification(task)
	if err != nil {
		h.log.Warn().Err(err).Str("task_type", task.Type()).Msg("dropping malformed notification task")
		return err
	}

	if err := h.deliverer.Deliver(ctx, n); err != nil {
		h.log.Warn().
			Err(err).
			Str("task_type", task.Type()).
			Str("payment_id", n.PaymentID.String()).
			Msg("notification delivery failed")
		return fmt.Errorf("deliver %s: %w", task.Type(), err)
	}
	return nil
}

// Worker runs the asynq server consuming the notification queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    zerolog.Logger
}

// NewWorker creates a worker for cfg that hands tasks to deliverer.
func NewWorker(cfg config.QueueConfig, deliverer ports.NotificationDeliverer, log zerolog.Logger) *Worker {
	queue := cfg.Queue
	if queue == "" {
		queue = defaultQueue
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      asynqLogger{log: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task_type", task.Type()).Msg("notification task failed")
		}),
	})

	mux := asynq.NewServeMux()
	NewHandler(deliverer, log).Register(mux)

	return &Worker{server: server, mux: mux, log: log}
}

// Run processes tasks until ctx is cancelled, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start queue worker: %w", err)
	}
	w.log.Info().Msg("notification worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info().Msg("notification worker stopped")
	return nil
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
