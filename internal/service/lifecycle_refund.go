package service

import (
	"context"
	"fmt"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/telemetry"
	"payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const fullRefundNote = "Payment fully refunded"

// IssueRefund records money returned against a completed payment.
// The refundable balance is recomputed under the payment row lock.
func (s *LifecycleServiceImpl) IssueRefund(ctx context.Context, req ports.RefundRequest) (result *ports.RefundResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.IssueRefund")
	defer s.observe(opIssueRefund, span, time.Now(), &err)
	span.SetAttributes(
		attribute.String("payment.id", req.PaymentID.String()),
		attribute.String("refund.amount", domain.FormatAmount(req.Amount)),
	)

	if err := validateRefund(req); err != nil {
		return nil, err
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

	refunded, err := s.refunds.SumCompleted(ctx, tx, payment.ID)
	if err != nil {
		return nil, dbError("sum completed refunds", err)
	}
	balance := payment.RefundableBalance(refunded)

	if !payment.IsRefundable() {
		// A fully refunded payment has nothing left; report the balance, not the status.
		if payment.Status == domain.PaymentStatusRefunded && balance.IsZero() {
			return nil, apperror.ErrAmountExceeded(domain.FormatAmount(balance))
		}
		return nil, apperror.ErrInvalidState(fmt.Sprintf(
			"Payment must be completed to issue a refund, current status is %s", payment.Status))
	}
	if req.Amount.GreaterThan(balance) {
		return nil, apperror.ErrAmountExceeded(domain.FormatAmount(balance))
	}

	status := domain.RefundStatusCompleted
	if req.Deferred {
		status = domain.RefundStatusPending
	}

	now := s.now()
	refund := &domain.Refund{
		ID:             uuid.New(),
		PaymentID:      payment.ID,
		Amount:         req.Amount,
		ReasonCategory: req.ReasonCategory,
		CustomReason:   trimmed(req.CustomReason),
		Method:         req.Method,
		Status:         status,
		ProcessedBy:    req.Actor.IDRef(),
		Notes:          trimmed(req.Notes),
		CreatedAt:      now,
	}
	if err := s.refunds.Create(ctx, tx, refund); err != nil {
		return nil, dbError("create refund", err)
	}

	entry := &domain.AuditEntry{
		PaymentID: payment.ID,
		Action:    domain.AuditActionRefund,
		Notes:     refund.Notes,
		ActorID:   req.Actor.IDRef(),
		CreatedAt: now,
	}
	if err := s.appendAudit(ctx, tx, entry, map[string]any{
		"refund_id":       refund.ID.String(),
		"amount":          domain.FormatAmount(refund.Amount),
		"reason_category": refund.ReasonCategory,
		"reason":          refund.Reason(),
		"refund_method":   refund.Method,
		"refund_status":   refund.Status,
	}); err != nil {
		return nil, err
	}

	if refund.Status == domain.RefundStatusCompleted {
		refunded = refunded.Add(refund.Amount)
	}
	fullyRefunded, err := s.settleIfFullyRefunded(ctx, tx, payment, refunded, refund, req.Actor, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("commit tx", err)
	}

	result = s.finishRefund(ctx, refundCommit{
		eventType:     domain.EventRefundIssued,
		payment:       payment,
		refund:        refund,
		refunded:      refunded,
		fullyRefunded: fullyRefunded,
		actor:         req.Actor,
		at:            now,
		notify:        req.NotifyCustomer,
		updateOrder:   req.UpdateOrderStatus,
	})

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("refund_id", refund.ID.String()).
		Str("amount", domain.FormatAmount(refund.Amount)).
		Str("refund_status", string(refund.Status)).
		Str("refundable_balance", domain.FormatAmount(result.RefundableBalance)).
		Str("actor", req.Actor.String()).
		Msg("refund issued")

	return result, nil
}

// ResolveRefund settles a pending refund. Completing it re-checks the refund cap,
// since other refunds may have completed while it was pending.
func (s *LifecycleServiceImpl) ResolveRefund(ctx context.Context, req ports.ResolveRefundRequest) (result *ports.RefundResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "LifecycleService.ResolveRefund")
	defer s.observe(opResolveRefund, span, time.Now(), &err)
	span.SetAttributes(
		attribute.String("refund.id", req.RefundID.String()),
		attribute.String("refund.new_status", string(req.Status)),
	)

	if !req.Status.IsTerminal() {
		return nil, apperror.Validation("refund status must be one of completed, failed")
	}

	// The payment id never changes, so it can be read before taking any lock.
	existing, err := s.refunds.GetByID(ctx, req.RefundID)
	if err != nil {
		return nil, dbError("get refund", err)
	}
	if existing == nil {
		return nil, apperror.ErrNotFound("Refund")
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, dbError("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock order is payment then refund, same as IssueRefund.
	payment, err := s.lockPayment(ctx, tx, existing.PaymentID)
	if err != nil {
		return nil, err
	}
	refund, err := s.refunds.GetByIDForUpdate(ctx, tx, req.RefundID)
	if err != nil {
		return nil, dbError("lock refund", err)
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("Refund")
	}

	if !refund.Status.CanTransitionTo(req.Status) {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("Refund is already %s", refund.Status))
	}

	refunded, err := s.refunds.SumCompleted(ctx, tx, payment.ID)
	if err != nil {
		return nil, dbError("sum completed refunds", err)
	}

	if req.Status == domain.RefundStatusCompleted {
		if !payment.IsRefundable() {
			return nil, apperror.ErrInvalidState(fmt.Sprintf(
				"Payment must be completed to complete a refund, current status is %s", payment.Status))
		}
		if balance := payment.RefundableBalance(refunded); refund.Amount.GreaterThan(balance) {
			return nil, apperror.ErrAmountExceeded(domain.FormatAmount(balance))
		}
	}

	now := s.now()
	oldStatus := refund.Status
	if err := s.refunds.UpdateStatus(ctx, tx, refund.ID, req.Status, now); err != nil {
		return nil, dbError("update refund status", err)
	}
	refund.Status = req.Status
	refund.UpdatedAt = &now

	entry := &domain.AuditEntry{
		PaymentID: payment.ID,
		Action:    domain.AuditActionRefundResolved,
		Notes:     trimmed(req.Notes),
		ActorID:   req.Actor.IDRef(),
		CreatedAt: now,
	}
	if err := s.appendAudit(ctx, tx, entry, map[string]any{
		"refund_id":          refund.ID.String(),
		"amount":             domain.FormatAmount(refund.Amount),
		"refund_status_from": oldStatus,
		"refund_status_to":   refund.Status,
	}); err != nil {
		return nil, err
	}

	if refund.Status == domain.RefundStatusCompleted {
		refunded = refunded.Add(refund.Amount)
	}
	fullyRefunded, err := s.settleIfFullyRefunded(ctx, tx, payment, refunded, refund, req.Actor, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("commit tx", err)
	}

	result = s.finishRefund(ctx, refundCommit{
		eventType:     domain.EventRefundResolved,
		payment:       payment,
		refund:        refund,
		refunded:      refunded,
		fullyRefunded: fullyRefunded,
		actor:         req.Actor,
		at:            now,
		notify:        req.NotifyCustomer,
		updateOrder:   req.UpdateOrderStatus,
	})

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("refund_id", refund.ID.String()).
		Str("refund_status", string(refund.Status)).
		Str("actor", req.Actor.String()).
		Msg("refund resolved")

	return result, nil
}

// settleIfFullyRefunded moves the payment to refunded through the same
// status-change path as UpdateStatus, so the second audit entry is written.
func (s *LifecycleServiceImpl) settleIfFullyRefunded(
	ctx context.Context,
	tx pgx.Tx,
	payment *domain.Payment,
	refunded decimal.Decimal,
	refund *domain.Refund,
	actor *domain.Actor,
	now time.Time,
) (bool, error) {
	if refund.Status != domain.RefundStatusCompleted || refunded.LessThan(payment.Amount) {
		return false, nil
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		return false, nil
	}
	note := fullRefundNote
	err := s.changeStatus(ctx, tx, payment, domain.PaymentStatusRefunded, &note, actor,
		map[string]any{"refund_id": refund.ID.String()}, now)
	if err != nil {
		return false, err
	}
	return true, nil
}

// refundCommit is the committed outcome of a refund operation.
type refundCommit struct {
	eventType     domain.LedgerEventType
	payment       *domain.Payment
	refund        *domain.Refund
	refunded      decimal.Decimal
	fullyRefunded bool
	actor         *domain.Actor
	at            time.Time
	notify        bool
	updateOrder   bool
}

func (s *LifecycleServiceImpl) finishRefund(ctx context.Context, c refundCommit) *ports.RefundResult {
	pc := s.afterCommit(ctx, c.payment)
	completed := c.refund.Status == domain.RefundStatusCompleted

	if c.updateOrder && completed {
		status := domain.OrderPaymentStatusPartiallyRefunded
		if c.fullyRefunded {
			status = domain.OrderStatusFor(c.payment.Status)
		}
		s.mirrorOrder(pc, c.payment, status)
	}
	if c.notify {
		pc.run(collaboratorNotifier, func() error {
			return s.notifier.SendRefundNotice(pc.ctx, c.payment, c.refund)
		})
	}

	s.publish(pc, refundEvent(c.eventType, c.payment, c.refund, c.actor, c.at))
	if c.fullyRefunded {
		s.publish(pc, statusChangedEvent(c.payment, domain.PaymentStatusCompleted, c.actor, c.at))
	}
	if completed {
		telemetry.RefundedAmountTotal.WithLabelValues(c.payment.Currency).Add(c.refund.Amount.InexactFloat64())
	}

	return &ports.RefundResult{
		Refund:            c.refund,
		RefundableBalance: c.payment.RefundableBalance(c.refunded),
		PaymentStatus:     c.payment.Status,
		Warnings:          pc.warnings,
	}
}

func validateRefund(req ports.RefundRequest) error {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return invalidAmount(err)
	}
	if !req.ReasonCategory.Valid() {
		return apperror.Validation(fmt.Sprintf("unsupported refund reason %q", req.ReasonCategory))
	}
	if req.ReasonCategory == domain.RefundReasonOther && trimmed(req.CustomReason) == nil {
		return apperror.Validation("custom_reason is required when reason_category is other")
	}
	if !req.Method.Valid() {
		return apperror.Validation(fmt.Sprintf("unsupported refund method %q", req.Method))
	}
	return nil
}
