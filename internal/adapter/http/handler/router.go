package handler

import (
	"payment-ledger/internal/adapter/http/middleware"
	"payment-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodyBytes limits admin request bodies.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Lifecycle      ports.LifecycleService
	Query          ports.LedgerQueryService
	TokenSvc       ports.TokenService
	Authorizer     middleware.Authorizer
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	admin := r.Group("/api/v1/admin",
		middleware.JWTAuth(deps.TokenSvc, deps.Logger),
		middleware.Authorize(deps.Authorizer, deps.Logger),
	)

	paymentHandler := NewPaymentHandler(deps.Lifecycle, deps.Query)
	refundHandler := NewRefundHandler(deps.Lifecycle, deps.Query)

	payments := admin.Group("/payments")
	{
		payments.POST("", rl(middleware.GroupPaymentsWrite), paymentHandler.RecordManualPayment)
		payments.GET("", rl(middleware.GroupReads), paymentHandler.ListPayments)
		payments.GET("/:id", rl(middleware.GroupReads), paymentHandler.GetPayment)
		payments.PATCH("/:id/status", rl(middleware.GroupPaymentsWrite), paymentHandler.UpdateStatus)
		payments.GET("/:id/refundable-balance", rl(middleware.GroupReads), paymentHandler.GetRefundableBalance)
		payments.POST("/:id/refunds", rl(middleware.GroupRefunds), refundHandler.IssueRefund)
		payments.GET("/:id/refunds", rl(middleware.GroupReads), refundHandler.ListRefunds)
		payments.POST("/:id/receipt", rl(middleware.GroupReceipts), paymentHandler.SendReceipt)
		payments.GET("/:id/audit", rl(middleware.GroupReads), paymentHandler.ListAuditTrail)
	}

	refunds := admin.Group("/refunds")
	{
		refunds.POST("/:id/resolve", rl(middleware.GroupRefunds), refundHandler.ResolveRefund)
	}

	return r
}
