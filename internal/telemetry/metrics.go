package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels used by LedgerOperationsTotal.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Total number of lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	LedgerOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_latency_seconds",
		Help:    "Latency of lifecycle operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CollaboratorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_collaborator_failures_total",
		Help: "Total number of post-commit side effects that failed",
	}, []string{"collaborator"})

	RefundedAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_refunded_amount_total",
		Help: "Sum of completed refund amounts",
	}, []string{"currency"})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_notifications_delivered_total",
		Help: "Total number of notification deliveries by task type and result",
	}, []string{"type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
