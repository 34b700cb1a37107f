package middleware

import (
	"fmt"
	"strconv"
	"time"

	"payment-ledger/internal/core/ports"
	"payment-ledger/pkg/apperror"
	"payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Endpoint groups.
const (
	GroupPaymentsWrite = "payments_write"
	GroupRefunds       = "refunds"
	GroupReceipts      = "receipts"
	GroupReads         = "reads"
)

// DefaultRateLimitRules returns the per-actor limits for each endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupPaymentsWrite: {Limit: 60, Window: time.Minute},
		GroupRefunds:       {Limit: 30, Window: time.Minute},
		GroupReceipts:      {Limit: 20, Window: time.Minute},
		GroupReads:         {Limit: 300, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// A store error lets the request through.
func RateLimiter(store ports.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys limits by actor when authenticated, else by client IP.
func extractIdentifier(c *gin.Context) string {
	if actor := ActorFrom(c); actor != nil {
		return "actor:" + actor.ID.String()
	}
	return "ip:" + c.ClientIP()
}
