package dto

import (
	"encoding/json"
	"testing"
	"time"

	"payment-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsAndEscapes(t *testing.T) {
	notes := "  cheque <b>#4411</b> ok  "
	req := RefundRequest{
		Amount:         " 10.00 ",
		ReasonCategory: " customer_request ",
		RefundMethod:   "cash",
		Notes:          &notes,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "10.00", req.Amount)
	assert.Equal(t, "customer_request", req.ReasonCategory)
	assert.Equal(t, "cheque &lt;b&gt;#4411&lt;/b&gt; ok", *req.Notes)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := StatusUpdateRequest{Status: "completed"}
	SanitizeStruct(&req)
	assert.Nil(t, req.Notes)
}

func TestSanitizeStruct_LeavesMapsAlone(t *testing.T) {
	req := ManualPaymentRequest{PaymentDetails: map[string]any{"memo": " <i>x</i> "}}
	SanitizeStruct(&req)
	assert.Equal(t, " <i>x</i> ", req.PaymentDetails["memo"])
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"ref-001", "REF_002", "a.b.c", "CHK-4411"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"ref 001", "ref<001>", "ref;DROP", "", "ref\n001"} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestManualPaymentRequest_Binding(t *testing.T) {
	valid := func() ManualPaymentRequest {
		return ManualPaymentRequest{
			CustomerID:    uuid.NewString(),
			PaymentMethod: "cash",
			Currency:      "usd",
			Amount:        "100.00",
			Status:        "completed",
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *ManualPaymentRequest)
		wantErr bool
	}{
		{"valid", func(r *ManualPaymentRequest) {}, false},
		{"bad customer id", func(r *ManualPaymentRequest) { r.CustomerID = "cust-1" }, true},
		{"bad order id", func(r *ManualPaymentRequest) { s := "order-1"; r.OrderID = &s }, true},
		{"currency digits", func(r *ManualPaymentRequest) { r.Currency = "US1" }, true},
		{"currency length", func(r *ManualPaymentRequest) { r.Currency = "USDT" }, true},
		{"unsafe transaction id", func(r *ManualPaymentRequest) { s := "tx 1"; r.TransactionID = &s }, true},
		{"missing amount", func(r *ManualPaymentRequest) { r.Amount = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := binding.Validator.ValidateStruct(&req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveRefundRequest_Binding(t *testing.T) {
	assert.NoError(t, binding.Validator.ValidateStruct(&ResolveRefundRequest{Status: "failed"}))
	assert.Error(t, binding.Validator.ValidateStruct(&ResolveRefundRequest{Status: "pending"}))
}

// --- Response mapping ---

func TestNewPaymentResponse(t *testing.T) {
	details := `{"bank":"ACME"}`
	updated := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := &domain.Payment{
		ID:        uuid.New(),
		Amount:    decimal.RequireFromString("100"),
		Currency:  "USD",
		Method:    domain.PaymentMethodBankTransfer,
		Status:    domain.PaymentStatusCompleted,
		Details:   &details,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: &updated,
	}

	resp := NewPaymentResponse(p)
	assert.Equal(t, "100.00", resp.Amount)
	assert.Nil(t, resp.CustomerID)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.CreatedAt)
	require.NotNil(t, resp.UpdatedAt)
	assert.Equal(t, "2026-03-02T09:00:00Z", *resp.UpdatedAt)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"payment_details":{"bank":"ACME"}`)
}

func TestNewAuditEntryResponse_SystemActor(t *testing.T) {
	status := "completed"
	resp := NewAuditEntryResponse(&domain.AuditEntry{
		ID:        uuid.New(),
		PaymentID: uuid.New(),
		Action:    domain.AuditActionManualPayment,
		NewStatus: &status,
	})
	assert.Equal(t, domain.SystemActor, resp.Actor)
	assert.Nil(t, resp.OldStatus)
	assert.Equal(t, "completed", *resp.NewStatus)
}
