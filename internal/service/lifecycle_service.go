package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/telemetry"
	"payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names used as metric labels.
const (
	opRecordManualPayment  = "record_manual_payment"
	opUpdateStatus         = "update_status"
	opIssueRefund          = "issue_refund"
	opResolveRefund        = "resolve_refund"
	opSendReceipt          = "send_receipt"
	opGetRefundableBalance = "get_refundable_balance"
)

const defaultIdempotencyTTL = 24 * time.Hour

// LifecycleDeps groups the ports LifecycleServiceImpl writes through.
// IdempCache may be nil, in which case Idempotency-Key is ignored.
type LifecycleDeps struct {
	Payments   ports.PaymentRepository
	Refunds    ports.RefundRepository
	Audit      ports.AuditRepository
	Transactor ports.DBTransactor
	Orders     ports.OrderCollaborator
	Notifier   ports.Notifier
	Events     ports.EventPublisher
	IdempCache ports.IdempotencyCache
}

// LifecycleServiceImpl implements ports.LifecycleService.
type LifecycleServiceImpl struct {
	payments   ports.PaymentRepository
	refunds    ports.RefundRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	orders     ports.OrderCollaborator
	notifier   ports.Notifier
	events     ports.EventPublisher
	idempCache ports.IdempotencyCache
	currencies domain.CurrencySet
	idempTTL   time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewLifecycleService creates a new LifecycleServiceImpl.
func NewLifecycleService(
	deps LifecycleDeps,
	currencies domain.CurrencySet,
	idempTTL time.Duration,
	log zerolog.Logger,
) *LifecycleServiceImpl {
	if len(currencies) == 0 {
		currencies = domain.NewCurrencySet(nil)
	}
	if idempTTL <= 0 {
		idempTTL = defaultIdempotencyTTL
	}
	return &LifecycleServiceImpl{
		payments:   deps.Payments,
		refunds:    deps.Refunds,
		audit:      deps.Audit,
		transactor: deps.Transactor,
		orders:     deps.Orders,
		notifier:   deps.Notifier,
		events:     deps.Events,
		idempCache: deps.IdempCache,
		currencies: currencies,
		idempTTL:   idempTTL,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// RecordManualPayment inserts an offline payment and its manual_payment audit entry.
func (s *LifecycleServiceImpl) RecordManualPayment(ctx context.Context, req ports.ManualPaymentRequest) (result *ports.ManualPaymentResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.RecordManualPayment")
	defer s.observe(opRecordManualPayment, span, time.Now(), &err)

	if err := s.validateManualPayment(req); err != nil {
		return nil, err
	}

	var idempKey string
	if req.IdempotencyKey != "" && s.idempCache != nil {
		idempKey = domain.BuildIdempotencyKey(req.CustomerID, req.IdempotencyKey)
		if cached := s.cachedManualPayment(ctx, idempKey); cached != nil {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return cached, nil
		}
	}

	details, err := marshalDetails(req.Details)
	if err != nil {
		return nil, apperror.Validation("payment_details must be a JSON object")
	}

	now := s.now()
	customerID := req.CustomerID
	payment := &domain.Payment{
		ID:            uuid.New(),
		CustomerID:    &customerID,
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		Method:        req.Method,
		Status:        req.Status,
		TransactionID: trimmed(req.TransactionID),
		Details:       details,
		Notes:         trimmed(req.Notes),
		CreatedAt:     now,
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID.String()))

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, dbError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.payments.Create(ctx, tx, payment); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrDuplicateTransaction()
		}
		return nil, dbError("create payment", err)
	}

	newStatus := string(payment.Status)
	entry := &domain.AuditEntry{
		PaymentID: payment.ID,
		Action:    domain.AuditActionManualPayment,
		NewStatus: &newStatus,
		Notes:     payment.Notes,
		ActorID:   req.Actor.IDRef(),
		CreatedAt: now,
	}
	if err := s.appendAudit(ctx, tx, entry, map[string]any{
		"amount":         domain.FormatAmount(payment.Amount),
		"currency":       payment.Currency,
		"payment_method": payment.Method,
		"transaction_id": payment.TransactionID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("commit tx", err)
	}

	pc := s.afterCommit(ctx, payment)
	s.mirrorOrder(pc, payment, domain.OrderStatusFor(payment.Status))
	s.publish(pc, newLedgerEvent(domain.EventPaymentRecorded, payment, req.Actor, now))

	result = &ports.ManualPaymentResult{Payment: payment, Warnings: pc.warnings}

	if idempKey != "" {
		s.cacheManualPayment(ctx, idempKey, result)
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("customer_id", customerID.String()).
		Str("amount", domain.FormatAmount(payment.Amount)).
		Str("currency", payment.Currency).
		Str("status", string(payment.Status)).
		Str("actor", req.Actor.String()).
		Msg("manual payment recorded")

	return result, nil
}

// UpdateStatus moves a payment to a new status under the payment row lock.
func (s *LifecycleServiceImpl) UpdateStatus(ctx context.Context, req ports.StatusUpdateRequest) (result *ports.StatusUpdateResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.UpdateStatus")
	defer s.observe(opUpdateStatus, span, time.Now(), &err)
	span.SetAttributes(
		attribute.String("payment.id", req.PaymentID.String()),
		attribute.String("payment.new_status", string(req.NewStatus)),
	)

	if !req.NewStatus.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unsupported payment status %q", req.NewStatus))
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, dbError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	payment, err := s.lockPayment(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	oldStatus := payment.Status
	if !oldStatus.CanTransitionTo(req.NewStatus) {
		return nil, apperror.ErrInvalidTransition(string(oldStatus), string(req.NewStatus))
	}

	now := s.now()
	if err := s.changeStatus(ctx, tx, payment, req.NewStatus, trimmed(req.Notes), req.Actor, nil, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("commit tx", err)
	}

	pc := s.afterCommit(ctx, payment)
	if req.UpdateLinkedOrder {
		s.mirrorOrder(pc, payment, domain.OrderStatusFor(payment.Status))
	}
	if req.NotifyCustomer {
		pc.run(collaboratorNotifier, func() error {
			return s.notifier.SendStatusChangeNotice(pc.ctx, payment, oldStatus)
		})
	}
	s.publish(pc, statusChangedEvent(payment, oldStatus, req.Actor, now))

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("old_status", string(oldStatus)).
		Str("new_status", string(payment.Status)).
		Str("actor", req.Actor.String()).
		Msg("payment status updated")

	return &ports.StatusUpdateResult{
		Payment:   payment,
		OldStatus: oldStatus,
		Warnings:  pc.warnings,
	}, nil
}

// SendReceipt records receipt_sent and then enqueues the receipt notification.
// The entry commits before the enqueue, so a receipt never goes out without its
// audit entry. An enqueue failure is returned to the caller with the entry kept.
func (s *LifecycleServiceImpl) SendReceipt(ctx context.Context, paymentID uuid.UUID, actor *domain.Actor) (entry *domain.AuditEntry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.SendReceipt")
	defer s.observe(opSendReceipt, span, time.Now(), &err)
	span.SetAttributes(attribute.String("payment.id", paymentID.String()))

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, dbError("get payment", err)
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("Payment")
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, dbError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	entry = &domain.AuditEntry{
		PaymentID: payment.ID,
		Action:    domain.AuditActionReceiptSent,
		ActorID:   actor.IDRef(),
		CreatedAt: now,
	}
	if err := s.appendAudit(ctx, tx, entry, map[string]any{
		"status": payment.Status,
		"amount": domain.FormatAmount(payment.Amount),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("commit tx", err)
	}

	pc := s.afterCommit(ctx, payment)
	if err := s.notifier.SendReceipt(pc.ctx, payment); err != nil {
		telemetry.CollaboratorFailuresTotal.WithLabelValues(collaboratorNotifier).Inc()
		pc.log.Warn().Err(err).Msg("receipt enqueue failed after receipt_sent was recorded")
		return nil, apperror.ErrCollaboratorFailure("Notification service", err)
	}
	s.publish(pc, newLedgerEvent(domain.EventReceiptSent, payment, actor, now))

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("actor", actor.String()).
		Msg("receipt sent")

	return entry, nil
}

// GetRefundableBalance returns amount minus completed refunds, never negative.
func (s *LifecycleServiceImpl) GetRefundableBalance(ctx context.Context, paymentID uuid.UUID) (balance decimal.Decimal, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.GetRefundableBalance")
	defer s.observe(opGetRefundableBalance, span, time.Now(), &err)

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return decimal.Zero, dbError("get payment", err)
	}
	if payment == nil {
		return decimal.Zero, apperror.ErrNotFound("Payment")
	}

	refunded, err := s.refunds.SumCompleted(ctx, nil, paymentID)
	if err != nil {
		return decimal.Zero, dbError("sum completed refunds", err)
	}
	return payment.RefundableBalance(refunded), nil
}

func (s *LifecycleServiceImpl) validateManualPayment(req ports.ManualPaymentRequest) error {
	if req.CustomerID == uuid.Nil {
		return apperror.Validation("customer_id is required")
	}
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return invalidAmount(err)
	}
	if !s.currencies.Supports(strings.TrimSpace(req.Currency)) {
		return apperror.Validation(fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	if !req.Method.Valid() {
		return apperror.Validation(fmt.Sprintf("unsupported payment method %q", req.Method))
	}
	if !req.Status.ValidForManualEntry() {
		return apperror.Validation("status must be one of pending, completed, failed")
	}
	return nil
}

// lockPayment takes the payment row lock. Every balance computation happens after it.
func (s *LifecycleServiceImpl) lockPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, dbError("lock payment", err)
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("Payment")
	}
	return payment, nil
}

// changeStatus writes the new status and its status_update entry inside tx,
// then updates the in-memory snapshot. Callers check the transition first.
func (s *LifecycleServiceImpl) changeStatus(
	ctx context.Context,
	tx pgx.Tx,
	payment *domain.Payment,
	target domain.PaymentStatus,
	notes *string,
	actor *domain.Actor,
	details map[string]any,
	now time.Time,
) error {
	if err := s.payments.UpdateStatus(ctx, tx, payment.ID, target, now); err != nil {
		return dbError("update payment status", err)
	}

	oldStatus, newStatus := string(payment.Status), string(target)
	entry := &domain.AuditEntry{
		PaymentID: payment.ID,
		Action:    domain.AuditActionStatusUpdate,
		OldStatus: &oldStatus,
		NewStatus: &newStatus,
		Notes:     notes,
		ActorID:   actor.IDRef(),
		CreatedAt: now,
	}
	if err := s.appendAudit(ctx, tx, entry, details); err != nil {
		return err
	}

	payment.Status = target
	payment.UpdatedAt = &now
	return nil
}

func (s *LifecycleServiceImpl) appendAudit(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry, details map[string]any) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("marshal audit details: %w", err))
		}
		d := string(raw)
		entry.Details = &d
	}
	if err := s.audit.Append(ctx, tx, entry); err != nil {
		return dbError("append audit entry", err)
	}
	return nil
}

func (s *LifecycleServiceImpl) cachedManualPayment(ctx context.Context, key string) *ports.ManualPaymentResult {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, recording without replay protection")
		return nil
	}
	if cached == nil {
		return nil
	}

	var result ports.ManualPaymentResult
	if err := json.Unmarshal(cached, &result); err != nil || result.Payment == nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable idempotency entry")
		return nil
	}
	result.Replayed = true
	return &result
}

func (s *LifecycleServiceImpl) cacheManualPayment(ctx context.Context, key string, result *ports.ManualPaymentResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to marshal idempotency entry")
		return
	}
	if err := s.idempCache.Set(ctx, key, raw, s.idempTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

// observe ends span and records the operation outcome.
func (s *LifecycleServiceImpl) observe(op string, span trace.Span, start time.Time, errp *error) {
	outcome := telemetry.OutcomeSuccess
	if err := *errp; err != nil {
		outcome = telemetry.OutcomeError
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			outcome = telemetry.OutcomeRejected
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
	}
	telemetry.LedgerOperationsTotal.WithLabelValues(op, outcome).Inc()
	telemetry.LedgerOperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	span.End()
}

func dbError(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, ports.ErrLockTimeout) {
		return apperror.ErrLockTimeout(err)
	}
	return apperror.ErrDatabaseError(err)
}

func invalidAmount(err error) error {
	appErr := apperror.ErrInvalidAmount()
	appErr.Message = fmt.Sprintf("%s: %v", appErr.Message, err)
	appErr.Err = err
	return appErr
}

func marshalDetails(details map[string]any) (*string, error) {
	if len(details) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	d := string(raw)
	return &d, nil
}

// trimmed returns nil for nil or blank input.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
