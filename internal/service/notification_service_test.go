package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testReceipt() domain.Notification {
	customerID := uuid.New()
	p := &domain.Payment{
		ID:         uuid.New(),
		CustomerID: &customerID,
		Amount:     decimal.RequireFromString("100.00"),
		Currency:   "USD",
		Status:     domain.PaymentStatusCompleted,
	}
	return domain.NewReceiptNotification(p, time.Unix(1708092000, 0))
}

func okResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func TestNotificationService_Deliver_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSigSvc := mocks.NewMockSignatureService(ctrl)
	n := testReceipt()

	var captured *http.Request
	var capturedBody []byte
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return okResponse(http.StatusOK), nil
		},
	}

	svc := NewNotificationService("https://gateway.example.com/notify", "whsec", mockSigSvc, httpClient, newTestLogger()).(*notificationService)
	svc.now = func() time.Time { return time.Unix(1708092000, 0) }

	mockSigSvc.EXPECT().BuildCanonicalString(int64(1708092000), gomock.Any()).Return("canonical")
	mockSigSvc.EXPECT().Sign("whsec", "canonical").Return("signature-hash")

	err := svc.Deliver(context.Background(), n)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "signature-hash", captured.Header.Get(HeaderSignature))
	assert.Equal(t, "1708092000", captured.Header.Get(HeaderTimestamp))
	assert.Equal(t, "receipt", captured.Header.Get(HeaderKind))

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal(capturedBody, &decoded))
	assert.Equal(t, n.PaymentID, decoded.PaymentID)
	assert.Equal(t, "100.00", decoded.Amount)
}

func TestNotificationService_Deliver_SignatureVerifiable(t *testing.T) {
	sigSvc := NewHMACSignatureService()

	var captured *http.Request
	var capturedBody []byte
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return okResponse(http.StatusAccepted), nil
		},
	}

	svc := NewNotificationService("https://gateway.example.com/notify", "whsec", sigSvc, httpClient, newTestLogger())
	require.NoError(t, svc.Deliver(context.Background(), testReceipt()))

	ts := captured.Header.Get(HeaderTimestamp)
	payload := ts + "." + string(capturedBody)
	assert.True(t, sigSvc.Verify("whsec", payload, captured.Header.Get(HeaderSignature)))
}

func TestNotificationService_Deliver_NoWebhookURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			t.Fatal("should not be called")
			return nil, nil
		},
	}

	svc := NewNotificationService("", "whsec", mocks.NewMockSignatureService(ctrl), httpClient, newTestLogger())
	assert.NoError(t, svc.Deliver(context.Background(), testReceipt()))
}

func TestNotificationService_Deliver_Non2xx(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return okResponse(http.StatusBadGateway), nil
		},
	}

	svc := NewNotificationService("https://gateway.example.com/notify", "whsec", NewHMACSignatureService(), httpClient, newTestLogger())
	err := svc.Deliver(context.Background(), testReceipt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotificationService_Deliver_TransportError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewNotificationService("https://gateway.example.com/notify", "whsec", NewHMACSignatureService(), httpClient, newTestLogger())
	err := svc.Deliver(context.Background(), testReceipt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
