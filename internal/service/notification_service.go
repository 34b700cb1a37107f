package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/telemetry"

	"github.com/rs/zerolog"
)

// Headers set on every notification delivery.
const (
	HeaderSignature = "X-Ledger-Signature"
	HeaderTimestamp = "X-Ledger-Timestamp"
	HeaderKind      = "X-Ledger-Notification"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// notificationService implements ports.NotificationDeliverer by POSTing
// a signed JSON payload to the mail/SMS gateway webhook.
type notificationService struct {
	webhookURL string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	now        func() time.Time
	log        zerolog.Logger
}

// NewNotificationService creates a new notification delivery service.
func NewNotificationService(
	webhookURL string,
	secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.NotificationDeliverer {
	return &notificationService{
		webhookURL: webhookURL,
		secret:     secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		now:        time.Now,
		log:        log,
	}
}

// Deliver makes one delivery attempt. A non-2xx answer is an error so the queue retries it.
func (s *notificationService) Deliver(ctx context.Context, n domain.Notification) error {
	kind := string(n.Kind)
	if s.webhookURL == "" {
		s.log.Debug().Str("kind", kind).Str("payment_id", n.PaymentID.String()).Msg("notification: no webhook URL configured, skipping")
		telemetry.NotificationsDeliveredTotal.WithLabelValues(kind, "skipped").Inc()
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	timestamp := s.now().Unix()
	signature := s.sigSvc.Sign(s.secret, s.sigSvc.BuildCanonicalString(timestamp, string(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderKind, kind)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		telemetry.NotificationsDeliveredTotal.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.NotificationsDeliveredTotal.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	telemetry.NotificationsDeliveredTotal.WithLabelValues(kind, "delivered").Inc()
	s.log.Info().
		Str("kind", kind).
		Str("payment_id", n.PaymentID.String()).
		Int("status", resp.StatusCode).
		Msg("notification delivered")
	return nil
}
