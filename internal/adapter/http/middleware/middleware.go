package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/internal/telemetry"
	"payment-ledger/pkg/apperror"
	"payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxActor     = "actor"
	CtxRequestID = "request_id"
)

// Authorizer decides whether a role may call a route.
type Authorizer interface {
	Allow(role domain.Role, path, method string) (bool, error)
}

// RequestID propagates X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth validates the bearer token and stores the actor in the context.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || !strings.EqualFold(authHeader[:7], "Bearer ") {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected bearer token")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxActor, claims.Actor())
		c.Next()
	}
}

// ActorFrom returns the authenticated actor, or nil when JWTAuth did not run.
func ActorFrom(c *gin.Context) *domain.Actor {
	v, ok := c.Get(CtxActor)
	if !ok {
		return nil
	}
	actor, _ := v.(*domain.Actor)
	return actor
}

// Authorize checks the actor's role against the route. Must run after JWTAuth.
func Authorize(authz Authorizer, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor == nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		allowed, err := authz.Allow(actor.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			log.Error().Err(err).Str("role", string(actor.Role)).Msg("authorization check failed")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !allowed {
			log.Warn().
				Str("actor", actor.String()).
				Str("role", string(actor.Role)).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Msg("access denied")
			response.Error(c, apperror.ErrForbidden())
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if actor := ActorFrom(c); actor != nil {
			event = event.Str("actor", actor.String())
		}

		event.
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Metrics records request count and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		telemetry.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		telemetry.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
