package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the AppError code carried by err, or "" if err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Payment Business Logic (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrDuplicateTransaction() *AppError {
	return New("PAY_003", "A payment with this transaction id already exists", http.StatusConflict)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ErrInvalidState is returned when the payment or refund is not in a state that permits the operation.
func ErrInvalidState(message string) *AppError {
	return New("PAY_006", message, http.StatusConflict)
}

// ErrAmountExceeded carries the refundable balance so the caller can retry with a corrected amount.
func ErrAmountExceeded(refundable string) *AppError {
	return New("PAY_007",
		fmt.Sprintf("Refund amount exceeds refundable balance of %s", refundable),
		http.StatusUnprocessableEntity)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("PAY_008",
		fmt.Sprintf("Status transition from %s to %s is not allowed", from, to),
		http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_005", "Role is not allowed to perform this action", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrCollaboratorFailure(collaborator string, err error) *AppError {
	return Wrap("SYS_004", fmt.Sprintf("%s is unavailable", collaborator), http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrPayloadTooLarge is returned when the request body exceeds the server limit.
func ErrPayloadTooLarge() *AppError {
	return New("PAY_002", "Request body too large", http.StatusRequestEntityTooLarge)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
