package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/core/ports/mocks"
	"payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type lifecycleTestDeps struct {
	svc        *LifecycleServiceImpl
	payments   *mocks.MockPaymentRepository
	refunds    *mocks.MockRefundRepository
	audit      *mocks.MockAuditRepository
	transactor *mocks.MockDBTransactor
	orders     *mocks.MockOrderCollaborator
	notifier   *mocks.MockNotifier
	events     *mocks.MockEventPublisher
	idempCache *mocks.MockIdempotencyCache
	ctrl       *gomock.Controller
}

func setupLifecycleService(t *testing.T) *lifecycleTestDeps {
	ctrl := gomock.NewController(t)
	d := &lifecycleTestDeps{
		payments:   mocks.NewMockPaymentRepository(ctrl),
		refunds:    mocks.NewMockRefundRepository(ctrl),
		audit:      mocks.NewMockAuditRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		orders:     mocks.NewMockOrderCollaborator(ctrl),
		notifier:   mocks.NewMockNotifier(ctrl),
		events:     mocks.NewMockEventPublisher(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLifecycleService(LifecycleDeps{
		Payments:   d.payments,
		Refunds:    d.refunds,
		Audit:      d.audit,
		Transactor: d.transactor,
		Orders:     d.orders,
		Notifier:   d.notifier,
		Events:     d.events,
		IdempCache: d.idempCache,
	}, domain.NewCurrencySet(nil), time.Hour, zerolog.Nop())
	d.svc.now = func() time.Time { return fixedNow }
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	committed bool
}

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func completedPayment(amt string) *domain.Payment {
	customerID := uuid.New()
	orderID := uuid.New()
	return &domain.Payment{
		ID:         uuid.New(),
		CustomerID: &customerID,
		OrderID:    &orderID,
		Amount:     amount(amt),
		Currency:   "USD",
		Method:     domain.PaymentMethodCard,
		Status:     domain.PaymentStatusCompleted,
		CreatedAt:  fixedNow.Add(-time.Hour),
	}
}

func validManualPayment() ports.ManualPaymentRequest {
	orderID := uuid.New()
	return ports.ManualPaymentRequest{
		CustomerID: uuid.New(),
		OrderID:    &orderID,
		Method:     domain.PaymentMethodBankTransfer,
		Currency:   "usd",
		Amount:     amount("100.00"),
		Status:     domain.PaymentStatusCompleted,
		Details:    map[string]any{"bank": "ACME"},
		Actor:      &domain.Actor{ID: uuid.New(), Role: domain.RoleFinance},
	}
}

func captureAudit(entries *[]*domain.AuditEntry) func(context.Context, pgx.Tx, *domain.AuditEntry) error {
	return func(_ context.Context, _ pgx.Tx, e *domain.AuditEntry) error {
		*entries = append(*entries, e)
		return nil
	}
}

// ==================== RecordManualPayment Tests ====================

func TestLifecycleService_RecordManualPayment_Success(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	req := validManualPayment()
	var audits []*domain.AuditEntry

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(captureAudit(&audits))
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), *req.OrderID, domain.OrderPaymentStatus("completed")).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e domain.LedgerEvent) error {
		assert.Equal(t, domain.EventPaymentRecorded, e.Type)
		assert.Equal(t, "100.00", e.Amount)
		return nil
	})

	result, err := d.svc.RecordManualPayment(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.True(t, tx.committed)
	assert.Empty(t, result.Warnings)

	p := result.Payment
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, req.CustomerID, *p.CustomerID)
	require.NotNil(t, p.Details)
	assert.JSONEq(t, `{"bank":"ACME"}`, *p.Details)

	require.Len(t, audits, 1)
	assert.Equal(t, domain.AuditActionManualPayment, audits[0].Action)
	assert.Nil(t, audits[0].OldStatus)
	assert.Equal(t, "completed", *audits[0].NewStatus)
	assert.Equal(t, req.Actor.ID, *audits[0].ActorID)
	assert.Equal(t, p.ID, audits[0].PaymentID)
}

func TestLifecycleService_RecordManualPayment_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ports.ManualPaymentRequest)
	}{
		{"zero amount", func(r *ports.ManualPaymentRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *ports.ManualPaymentRequest) { r.Amount = amount("-5.00") }},
		{"three decimals", func(r *ports.ManualPaymentRequest) { r.Amount = amount("1.005") }},
		{"beyond column precision", func(r *ports.ManualPaymentRequest) { r.Amount = amount("1000000000000.00") }},
		{"unsupported currency", func(r *ports.ManualPaymentRequest) { r.Currency = "XYZ" }},
		{"unknown method", func(r *ports.ManualPaymentRequest) { r.Method = "crypto" }},
		{"refunded status", func(r *ports.ManualPaymentRequest) { r.Status = domain.PaymentStatusRefunded }},
		{"missing customer", func(r *ports.ManualPaymentRequest) { r.CustomerID = uuid.Nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLifecycleService(t)
			defer d.ctrl.Finish()

			req := validManualPayment()
			tt.mutate(&req)

			result, err := d.svc.RecordManualPayment(context.Background(), req)
			assert.Nil(t, result)
			assertAppError(t, err, "PAY_002")
		})
	}
}

func TestLifecycleService_RecordManualPayment_DuplicateTransactionID(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	req := validManualPayment()
	ref := "BANK-REF-1"
	req.TransactionID = &ref

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(ports.ErrDuplicate)

	result, err := d.svc.RecordManualPayment(context.Background(), req)
	assert.Nil(t, result)
	assertAppError(t, err, "PAY_003")
	assert.False(t, tx.committed)
}

func TestLifecycleService_RecordManualPayment_IdempotentReplay(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	req := validManualPayment()
	req.IdempotencyKey = "retry-1"
	key := domain.BuildIdempotencyKey(req.CustomerID, "retry-1")

	prior := &ports.ManualPaymentResult{Payment: completedPayment("100.00")}
	cached, err := json.Marshal(prior)
	require.NoError(t, err)

	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(cached, nil)

	result, err := d.svc.RecordManualPayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, prior.Payment.ID, result.Payment.ID)
	assert.True(t, prior.Payment.Amount.Equal(result.Payment.Amount))
}

func TestLifecycleService_RecordManualPayment_CachesResult(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	req := validManualPayment()
	req.OrderID = nil
	req.IdempotencyKey = "retry-2"
	key := domain.BuildIdempotencyKey(req.CustomerID, "retry-2")

	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(nil, errors.New("redis down"))
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(gomock.Any(), key, gomock.Any(), time.Hour).Return(nil)

	result, err := d.svc.RecordManualPayment(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
}

func TestLifecycleService_RecordManualPayment_CollaboratorFailuresBecomeWarnings(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	req := validManualPayment()

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("order not found"))
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))

	result, err := d.svc.RecordManualPayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Len(t, result.Warnings, 2)
}

func TestLifecycleService_RecordManualPayment_AuditFailureAborts(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(errors.New("disk full"))

	_, err := d.svc.RecordManualPayment(context.Background(), validManualPayment())
	assertAppError(t, err, "SYS_001")
	assert.False(t, tx.committed)
}

// ==================== UpdateStatus Tests ====================

func TestLifecycleService_UpdateStatus_Success(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("80.00")
	payment.Status = domain.PaymentStatusPending
	notes := "  cleared by bank  "
	actor := &domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	var audits []*domain.AuditEntry

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.payments.EXPECT().UpdateStatus(gomock.Any(), tx, payment.ID, domain.PaymentStatusCompleted, fixedNow).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(captureAudit(&audits))
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), *payment.OrderID, domain.OrderPaymentStatus("completed")).Return(nil)
	d.notifier.EXPECT().SendStatusChangeNotice(gomock.Any(), payment, domain.PaymentStatusPending).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.UpdateStatus(context.Background(), ports.StatusUpdateRequest{
		PaymentID:         payment.ID,
		NewStatus:         domain.PaymentStatusCompleted,
		Notes:             &notes,
		Actor:             actor,
		NotifyCustomer:    true,
		UpdateLinkedOrder: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, result.OldStatus)
	assert.Equal(t, domain.PaymentStatusCompleted, result.Payment.Status)
	assert.Equal(t, fixedNow, *result.Payment.UpdatedAt)

	require.Len(t, audits, 1)
	assert.Equal(t, domain.AuditActionStatusUpdate, audits[0].Action)
	assert.Equal(t, "pending", *audits[0].OldStatus)
	assert.Equal(t, "completed", *audits[0].NewStatus)
	assert.Equal(t, "cleared by bank", *audits[0].Notes)
}

func TestLifecycleService_UpdateStatus_NotFound(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	id := uuid.New()
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, id).Return(nil, nil)

	_, err := d.svc.UpdateStatus(context.Background(), ports.StatusUpdateRequest{
		PaymentID: id,
		NewStatus: domain.PaymentStatusFailed,
	})
	assertAppError(t, err, "PAY_004")
}

func TestLifecycleService_UpdateStatus_RejectedTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current domain.PaymentStatus
		target  domain.PaymentStatus
	}{
		{"same status", domain.PaymentStatusCompleted, domain.PaymentStatusCompleted},
		{"refunded to failed", domain.PaymentStatusRefunded, domain.PaymentStatusFailed},
		{"refunded to pending", domain.PaymentStatusRefunded, domain.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLifecycleService(t)
			defer d.ctrl.Finish()

			tx := &mockTx{}
			payment := completedPayment("10.00")
			payment.Status = tt.current

			d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
			d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)

			_, err := d.svc.UpdateStatus(context.Background(), ports.StatusUpdateRequest{
				PaymentID: payment.ID,
				NewStatus: tt.target,
			})
			assertAppError(t, err, "PAY_008")
			assert.False(t, tx.committed)
		})
	}
}

func TestLifecycleService_UpdateStatus_UnknownStatus(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.UpdateStatus(context.Background(), ports.StatusUpdateRequest{
		PaymentID: uuid.New(),
		NewStatus: "settled",
	})
	assertAppError(t, err, "PAY_002")
}

func TestLifecycleService_UpdateStatus_NotificationFailureKeepsCommit(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("10.00")

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.payments.EXPECT().UpdateStatus(gomock.Any(), tx, payment.ID, domain.PaymentStatusFailed, fixedNow).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.notifier.EXPECT().SendStatusChangeNotice(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("queue down"))
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.UpdateStatus(context.Background(), ports.StatusUpdateRequest{
		PaymentID:      payment.ID,
		NewStatus:      domain.PaymentStatusFailed,
		NotifyCustomer: true,
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, []string{"customer notification was not sent"}, result.Warnings)
}

// cancelOnCommitTx cancels the request context right after the commit,
// the way a client disconnect would.
type cancelOnCommitTx struct {
	mockTx
	cancel context.CancelFunc
}

func (m *cancelOnCommitTx) Commit(ctx context.Context) error {
	_ = m.mockTx.Commit(ctx)
	m.cancel()
	return nil
}

func TestLifecycleService_UpdateStatus_EffectsSurviveRequestCancel(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := &cancelOnCommitTx{cancel: cancel}
	payment := completedPayment("30.00")
	live := func(c context.Context) {
		assert.NoError(t, c.Err(), "post-commit effect got a cancelled context")
	}

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.payments.EXPECT().UpdateStatus(gomock.Any(), tx, payment.ID, domain.PaymentStatusFailed, fixedNow).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), *payment.OrderID, gomock.Any()).DoAndReturn(
		func(c context.Context, _ uuid.UUID, _ domain.OrderPaymentStatus) error {
			live(c)
			return c.Err()
		})
	d.notifier.EXPECT().SendStatusChangeNotice(gomock.Any(), payment, domain.PaymentStatusCompleted).DoAndReturn(
		func(c context.Context, _ *domain.Payment, _ domain.PaymentStatus) error {
			live(c)
			return c.Err()
		})
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(c context.Context, _ domain.LedgerEvent) error {
			live(c)
			return c.Err()
		})

	result, err := d.svc.UpdateStatus(ctx, ports.StatusUpdateRequest{
		PaymentID:         payment.ID,
		NewStatus:         domain.PaymentStatusFailed,
		NotifyCustomer:    true,
		UpdateLinkedOrder: true,
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Error(t, ctx.Err())
	assert.Empty(t, result.Warnings)
}

// ==================== IssueRefund Tests ====================

func validRefund(paymentID uuid.UUID, amt string) ports.RefundRequest {
	return ports.RefundRequest{
		PaymentID:      paymentID,
		Amount:         amount(amt),
		ReasonCategory: domain.RefundReasonCustomerRequest,
		Method:         domain.RefundMethodOriginal,
		Actor:          &domain.Actor{ID: uuid.New(), Role: domain.RoleFinance},
	}
}

func TestLifecycleService_IssueRefund_Partial(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("200.00")
	var audits []*domain.AuditEntry

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(amount("30.00"), nil)
	d.refunds.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(captureAudit(&audits))
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), *payment.OrderID, domain.OrderPaymentStatusPartiallyRefunded).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	req := validRefund(payment.ID, "80.00")
	req.UpdateOrderStatus = true

	result, err := d.svc.IssueRefund(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, "90.00", domain.FormatAmount(result.RefundableBalance))
	assert.Equal(t, domain.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, domain.RefundStatusCompleted, result.Refund.Status)
	assert.Equal(t, req.Actor.ID, *result.Refund.ProcessedBy)

	require.Len(t, audits, 1)
	assert.Equal(t, domain.AuditActionRefund, audits[0].Action)
	require.NotNil(t, audits[0].Details)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(*audits[0].Details), &details))
	assert.Equal(t, "80.00", details["amount"])
	assert.Equal(t, "customer_request", details["reason"])
	assert.Equal(t, result.Refund.ID.String(), details["refund_id"])
}

func TestLifecycleService_IssueRefund_FullRefundTransitionsPayment(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("100.00")
	var audits []*domain.AuditEntry
	var published []domain.LedgerEventType

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(decimal.Zero, nil)
	d.refunds.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.payments.EXPECT().UpdateStatus(gomock.Any(), tx, payment.ID, domain.PaymentStatusRefunded, fixedNow).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(captureAudit(&audits)).Times(2)
	d.orders.EXPECT().SetPaymentStatus(gomock.Any(), *payment.OrderID, domain.OrderPaymentStatus("refunded")).Return(nil)
	d.notifier.EXPECT().SendRefundNotice(gomock.Any(), payment, gomock.Any()).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e domain.LedgerEvent) error {
		published = append(published, e.Type)
		return nil
	}).Times(2)

	req := validRefund(payment.ID, "100.00")
	req.NotifyCustomer = true
	req.UpdateOrderStatus = true

	result, err := d.svc.IssueRefund(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.RefundableBalance.IsZero())
	assert.Equal(t, domain.PaymentStatusRefunded, result.PaymentStatus)

	require.Len(t, audits, 2)
	assert.Equal(t, domain.AuditActionRefund, audits[0].Action)
	assert.Equal(t, domain.AuditActionStatusUpdate, audits[1].Action)
	assert.Equal(t, "completed", *audits[1].OldStatus)
	assert.Equal(t, "refunded", *audits[1].NewStatus)

	assert.Equal(t, []domain.LedgerEventType{domain.EventRefundIssued, domain.EventPaymentStatusChanged}, published)
}

func TestLifecycleService_IssueRefund_AmountExceeded(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("50.00")

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(amount("10.00"), nil)

	_, err := d.svc.IssueRefund(context.Background(), validRefund(payment.ID, "40.01"))
	assertAppError(t, err, "PAY_007")
	assert.Contains(t, err.Error(), "40.00")
	assert.False(t, tx.committed)
}

func TestLifecycleService_IssueRefund_PendingPayment(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("50.00")
	payment.Status = domain.PaymentStatusPending

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(decimal.Zero, nil)

	_, err := d.svc.IssueRefund(context.Background(), validRefund(payment.ID, "10.00"))
	assertAppError(t, err, "PAY_006")
}

func TestLifecycleService_IssueRefund_FullyRefundedPayment(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("50.00")
	payment.Status = domain.PaymentStatusRefunded

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(amount("50.00"), nil)

	_, err := d.svc.IssueRefund(context.Background(), validRefund(payment.ID, "0.01"))
	assertAppError(t, err, "PAY_007")
	assert.Contains(t, err.Error(), "0.00")
}

func TestLifecycleService_IssueRefund_InvalidInput(t *testing.T) {
	other := domain.RefundReasonOther
	tests := []struct {
		name   string
		mutate func(r *ports.RefundRequest)
	}{
		{"zero amount", func(r *ports.RefundRequest) { r.Amount = decimal.Zero }},
		{"unknown reason", func(r *ports.RefundRequest) { r.ReasonCategory = "changed_mind" }},
		{"other without text", func(r *ports.RefundRequest) { r.ReasonCategory = other }},
		{"unknown method", func(r *ports.RefundRequest) { r.Method = "wire" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLifecycleService(t)
			defer d.ctrl.Finish()

			req := validRefund(uuid.New(), "10.00")
			tt.mutate(&req)

			_, err := d.svc.IssueRefund(context.Background(), req)
			assertAppError(t, err, "PAY_002")
		})
	}
}

func TestLifecycleService_IssueRefund_LockTimeout(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	id := uuid.New()
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, id).Return(nil, ports.ErrLockTimeout)

	_, err := d.svc.IssueRefund(context.Background(), validRefund(id, "10.00"))
	assertAppError(t, err, "SYS_002")
}

func TestLifecycleService_IssueRefund_DeferredStaysPending(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("100.00")

	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(decimal.Zero, nil)
	d.refunds.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	req := validRefund(payment.ID, "100.00")
	req.Deferred = true
	req.UpdateOrderStatus = true

	result, err := d.svc.IssueRefund(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPending, result.Refund.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, "100.00", domain.FormatAmount(result.RefundableBalance))
}

// ==================== ResolveRefund Tests ====================

func TestLifecycleService_ResolveRefund_AlreadyTerminal(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("100.00")
	refund := &domain.Refund{ID: uuid.New(), PaymentID: payment.ID, Amount: amount("10.00"), Status: domain.RefundStatusCompleted}

	d.refunds.EXPECT().GetByID(gomock.Any(), refund.ID).Return(refund, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().GetByIDForUpdate(gomock.Any(), tx, refund.ID).Return(refund, nil)

	_, err := d.svc.ResolveRefund(context.Background(), ports.ResolveRefundRequest{
		RefundID: refund.ID,
		Status:   domain.RefundStatusFailed,
	})
	assertAppError(t, err, "PAY_006")
}

func TestLifecycleService_ResolveRefund_CompletionRechecksCap(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("100.00")
	refund := &domain.Refund{ID: uuid.New(), PaymentID: payment.ID, Amount: amount("60.00"), Status: domain.RefundStatusPending}

	d.refunds.EXPECT().GetByID(gomock.Any(), refund.ID).Return(refund, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().GetByIDForUpdate(gomock.Any(), tx, refund.ID).Return(refund, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(amount("50.00"), nil)

	_, err := d.svc.ResolveRefund(context.Background(), ports.ResolveRefundRequest{
		RefundID: refund.ID,
		Status:   domain.RefundStatusCompleted,
	})
	assertAppError(t, err, "PAY_007")
	assert.Contains(t, err.Error(), "50.00")
}

func TestLifecycleService_ResolveRefund_Failed(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("100.00")
	refund := &domain.Refund{ID: uuid.New(), PaymentID: payment.ID, Amount: amount("100.00"), Status: domain.RefundStatusPending}
	var audits []*domain.AuditEntry

	d.refunds.EXPECT().GetByID(gomock.Any(), refund.ID).Return(refund, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.payments.EXPECT().GetByIDForUpdate(gomock.Any(), tx, payment.ID).Return(payment, nil)
	d.refunds.EXPECT().GetByIDForUpdate(gomock.Any(), tx, refund.ID).Return(refund, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), tx, payment.ID).Return(decimal.Zero, nil)
	d.refunds.EXPECT().UpdateStatus(gomock.Any(), tx, refund.ID, domain.RefundStatusFailed, fixedNow).Return(nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).DoAndReturn(captureAudit(&audits))
	d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.ResolveRefund(context.Background(), ports.ResolveRefundRequest{
		RefundID:          refund.ID,
		Status:            domain.RefundStatusFailed,
		UpdateOrderStatus: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusFailed, result.Refund.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, "100.00", domain.FormatAmount(result.RefundableBalance))
	require.Len(t, audits, 1)
	assert.Equal(t, domain.AuditActionRefundResolved, audits[0].Action)
}

func TestLifecycleService_ResolveRefund_NotFound(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	d.refunds.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	_, err := d.svc.ResolveRefund(context.Background(), ports.ResolveRefundRequest{
		RefundID: id,
		Status:   domain.RefundStatusCompleted,
	})
	assertAppError(t, err, "PAY_004")
}

func TestLifecycleService_ResolveRefund_PendingTargetRejected(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.ResolveRefund(context.Background(), ports.ResolveRefundRequest{
		RefundID: uuid.New(),
		Status:   domain.RefundStatusPending,
	})
	assertAppError(t, err, "PAY_002")
}

// ==================== SendReceipt Tests ====================

func TestLifecycleService_SendReceipt_Success(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("25.00")
	actor := &domain.Actor{ID: uuid.New(), Role: domain.RoleSupport}

	d.payments.EXPECT().GetByID(gomock.Any(), payment.ID).Return(payment, nil)
	gomock.InOrder(
		d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil),
		d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil),
		d.notifier.EXPECT().SendReceipt(gomock.Any(), payment).DoAndReturn(
			func(context.Context, *domain.Payment) error {
				assert.True(t, tx.committed, "receipt enqueued before receipt_sent committed")
				return nil
			}),
		d.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
	)

	entry, err := d.svc.SendReceipt(context.Background(), payment.ID, actor)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, domain.AuditActionReceiptSent, entry.Action)
	assert.Equal(t, actor.ID.String(), entry.Actor())
}

func TestLifecycleService_SendReceipt_EnqueueFailure(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("25.00")
	d.payments.EXPECT().GetByID(gomock.Any(), payment.ID).Return(payment, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(nil)
	d.notifier.EXPECT().SendReceipt(gomock.Any(), payment).Return(errors.New("redis unavailable"))

	_, err := d.svc.SendReceipt(context.Background(), payment.ID, nil)
	assertAppError(t, err, "SYS_004")
	assert.True(t, tx.committed)
}

func TestLifecycleService_SendReceipt_AuditFailureSkipsEnqueue(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	payment := completedPayment("25.00")
	d.payments.EXPECT().GetByID(gomock.Any(), payment.ID).Return(payment, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.audit.EXPECT().Append(gomock.Any(), tx, gomock.Any()).Return(errors.New("disk full"))

	_, err := d.svc.SendReceipt(context.Background(), payment.ID, nil)
	assertAppError(t, err, "SYS_001")
	assert.False(t, tx.committed)
}

func TestLifecycleService_SendReceipt_BeginFailureSkipsEnqueue(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	payment := completedPayment("25.00")
	d.payments.EXPECT().GetByID(gomock.Any(), payment.ID).Return(payment, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool exhausted"))

	_, err := d.svc.SendReceipt(context.Background(), payment.ID, nil)
	assertAppError(t, err, "SYS_001")
}

func TestLifecycleService_SendReceipt_NotFound(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	d.payments.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	_, err := d.svc.SendReceipt(context.Background(), id, nil)
	assertAppError(t, err, "PAY_004")
}

// ==================== GetRefundableBalance Tests ====================

func TestLifecycleService_GetRefundableBalance(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	payment := completedPayment("120.00")
	d.payments.EXPECT().GetByID(gomock.Any(), payment.ID).Return(payment, nil)
	d.refunds.EXPECT().SumCompleted(gomock.Any(), nil, payment.ID).Return(amount("20.50"), nil)

	balance, err := d.svc.GetRefundableBalance(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "99.50", domain.FormatAmount(balance))
}

func TestLifecycleService_GetRefundableBalance_NotFound(t *testing.T) {
	d := setupLifecycleService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	d.payments.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	_, err := d.svc.GetRefundableBalance(context.Background(), id)
	assertAppError(t, err, "PAY_004")
}

// ==================== Helper ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
