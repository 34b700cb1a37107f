package service

import (
	"context"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/telemetry"

	"github.com/rs/zerolog"
)

// Collaborator names used in logs and metric labels.
const (
	collaboratorOrder    = "order"
	collaboratorNotifier = "notification"
	collaboratorEvents   = "events"
)

var collaboratorWarnings = map[string]string{
	collaboratorOrder:    "linked order payment status was not updated",
	collaboratorNotifier: "customer notification was not sent",
	collaboratorEvents:   "ledger event was not published",
}

// postCommit runs side effects after a ledger commit. A failure is logged,
// counted and turned into a warning; it never reaches the committed rows.
// Its ctx keeps the request values but not its cancellation: the commit has
// happened, so a client disconnect must not abort the effects.
type postCommit struct {
	ctx      context.Context
	log      zerolog.Logger
	warnings []string
}

func (s *LifecycleServiceImpl) afterCommit(ctx context.Context, payment *domain.Payment) *postCommit {
	return &postCommit{
		ctx: context.WithoutCancel(ctx),
		log: s.log.With().Str("payment_id", payment.ID.String()).Logger(),
	}
}

func (p *postCommit) run(collaborator string, fn func() error) {
	if err := fn(); err != nil {
		telemetry.CollaboratorFailuresTotal.WithLabelValues(collaborator).Inc()
		p.log.Warn().Err(err).Str("collaborator", collaborator).Msg("post-commit side effect failed")
		p.warnings = append(p.warnings, collaboratorWarnings[collaborator])
	}
}

func (s *LifecycleServiceImpl) mirrorOrder(pc *postCommit, payment *domain.Payment, status domain.OrderPaymentStatus) {
	if payment.OrderID == nil {
		return
	}
	orderID := *payment.OrderID
	pc.run(collaboratorOrder, func() error {
		return s.orders.SetPaymentStatus(pc.ctx, orderID, status)
	})
}

func (s *LifecycleServiceImpl) publish(pc *postCommit, event domain.LedgerEvent) {
	pc.run(collaboratorEvents, func() error {
		return s.events.Publish(pc.ctx, event)
	})
}

func newLedgerEvent(t domain.LedgerEventType, payment *domain.Payment, actor *domain.Actor, at time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		Type:       t,
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		NewStatus:  string(payment.Status),
		Amount:     domain.FormatAmount(payment.Amount),
		Currency:   payment.Currency,
		Actor:      actor.String(),
		OccurredAt: at,
	}
}

func statusChangedEvent(payment *domain.Payment, oldStatus domain.PaymentStatus, actor *domain.Actor, at time.Time) domain.LedgerEvent {
	event := newLedgerEvent(domain.EventPaymentStatusChanged, payment, actor, at)
	event.OldStatus = string(oldStatus)
	return event
}

// refundEvent carries the refund amount and status instead of the payment's.
func refundEvent(t domain.LedgerEventType, payment *domain.Payment, refund *domain.Refund, actor *domain.Actor, at time.Time) domain.LedgerEvent {
	event := newLedgerEvent(t, payment, actor, at)
	refundID := refund.ID
	event.RefundID = &refundID
	event.Amount = domain.FormatAmount(refund.Amount)
	event.NewStatus = string(refund.Status)
	return event
}
