package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment-ledger/internal/adapter/http/dto"
	"payment-ledger/internal/adapter/http/middleware"
	"payment-ledger/internal/core/domain"
	"payment-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxIdempotencyKeyLen = 128

// bindJSON decodes and validates the body into v, then sanitizes its strings.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		if middleware.BodyTooLarge(err) {
			return apperror.ErrPayloadTooLarge()
		}
		return apperror.Validation(err.Error())
	}
	dto.SanitizeStruct(v)
	return nil
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation(fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		appErr := apperror.ErrInvalidAmount()
		appErr.Message = fmt.Sprintf("%s: %v", appErr.Message, err)
		return decimal.Zero, appErr
	}
	return amount, nil
}

func optionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, apperror.Validation("invalid UUID " + *raw)
	}
	return &id, nil
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return nil, nil
	}
	id, err := optionalUUID(&raw)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

// queryTime accepts RFC 3339 or a plain date. A plain "to" date covers the whole day.
func queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("%s must be RFC 3339 or YYYY-MM-DD", name))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation(fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

func idempotencyKey(c *gin.Context) (string, error) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		return "", apperror.Validation(fmt.Sprintf("Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen))
	}
	return key, nil
}
