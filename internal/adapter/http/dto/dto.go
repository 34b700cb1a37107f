package dto

import (
	"encoding/json"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// ManualPaymentRequest is the request body for recording an offline payment.
// Amount is a decimal string such as "100.00".
type ManualPaymentRequest struct {
	CustomerID     string         `json:"customer_id" binding:"required,uuid"`
	OrderID        *string        `json:"order_id,omitempty" binding:"omitempty,uuid"`
	PaymentMethod  string         `json:"payment_method" binding:"required"`
	Currency       string         `json:"currency" binding:"required,iso_currency"`
	Amount         string         `json:"amount" binding:"required"`
	Status         string         `json:"status" binding:"required"`
	TransactionID  *string        `json:"transaction_id,omitempty" binding:"omitempty,max=100,safe_id"`
	PaymentDetails map[string]any `json:"payment_details,omitempty"`
	Notes          *string        `json:"notes,omitempty" binding:"omitempty,max=1000"`
}

// StatusUpdateRequest is the request body for PATCH /payments/:id/status.
type StatusUpdateRequest struct {
	Status            string  `json:"status" binding:"required"`
	Notes             *string `json:"notes,omitempty" binding:"omitempty,max=1000"`
	NotifyCustomer    bool    `json:"notify_customer"`
	UpdateLinkedOrder bool    `json:"update_linked_order"`
}

// RefundRequest is the request body for POST /payments/:id/refunds.
type RefundRequest struct {
	Amount            string  `json:"amount" binding:"required"`
	ReasonCategory    string  `json:"reason_category" binding:"required"`
	CustomReason      *string `json:"custom_reason,omitempty" binding:"omitempty,max=500"`
	RefundMethod      string  `json:"refund_method" binding:"required"`
	Notes             *string `json:"notes,omitempty" binding:"omitempty,max=1000"`
	NotifyCustomer    bool    `json:"notify_customer"`
	UpdateOrderStatus bool    `json:"update_order_status"`
	Deferred          bool    `json:"deferred"`
}

// ResolveRefundRequest is the request body for POST /refunds/:id/resolve.
type ResolveRefundRequest struct {
	Status            string  `json:"status" binding:"required,oneof=completed failed"`
	Notes             *string `json:"notes,omitempty" binding:"omitempty,max=1000"`
	NotifyCustomer    bool    `json:"notify_customer"`
	UpdateOrderStatus bool    `json:"update_order_status"`
}

// PaymentResponse is the wire form of a payment. Money is a 2-decimal string.
type PaymentResponse struct {
	ID                string          `json:"id"`
	CustomerID        *string         `json:"customer_id,omitempty"`
	OrderID           *string         `json:"order_id,omitempty"`
	Amount            string          `json:"amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"payment_method"`
	Status            string          `json:"status"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	PaymentDetails    json.RawMessage `json:"payment_details,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         *string         `json:"updated_at,omitempty"`
	RefundedTotal     *string         `json:"refunded_total,omitempty"`
	RefundableBalance *string         `json:"refundable_balance,omitempty"`
}

// ManualPaymentResponse wraps the recorded payment and any post-commit warnings.
type ManualPaymentResponse struct {
	Payment  PaymentResponse `json:"payment"`
	Warnings []string        `json:"warnings,omitempty"`
}

type StatusUpdateResponse struct {
	Payment   PaymentResponse `json:"payment"`
	OldStatus string          `json:"old_status"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type RefundResponse struct {
	ID             string  `json:"id"`
	PaymentID      string  `json:"payment_id"`
	Amount         string  `json:"amount"`
	ReasonCategory string  `json:"reason_category"`
	Reason         string  `json:"reason"`
	RefundMethod   string  `json:"refund_method"`
	Status         string  `json:"status"`
	ProcessedBy    *string `json:"processed_by,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      *string `json:"updated_at,omitempty"`
}

// RefundResultResponse is returned by refund issuance and resolution.
type RefundResultResponse struct {
	Refund            RefundResponse `json:"refund"`
	RefundableBalance string         `json:"refundable_balance"`
	PaymentStatus     string         `json:"payment_status"`
	Warnings          []string       `json:"warnings,omitempty"`
}

type BalanceResponse struct {
	PaymentID         string `json:"payment_id"`
	RefundableBalance string `json:"refundable_balance"`
}

type AuditEntryResponse struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	Action    string          `json:"action"`
	OldStatus *string         `json:"old_status,omitempty"`
	NewStatus *string         `json:"new_status,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
	Actor     string          `json:"actor"`
	CreatedAt string          `json:"created_at"`
}

// PaymentListResponse wraps a paginated payment list.
type PaymentListResponse struct {
	Items      []PaymentResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// NewPaymentResponse converts a domain payment.
func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID.String(),
		CustomerID:    uuidString(p.CustomerID),
		OrderID:       uuidString(p.OrderID),
		Amount:        domain.FormatAmount(p.Amount),
		Currency:      p.Currency,
		PaymentMethod: string(p.Method),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		Notes:         p.Notes,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTimePtr(p.UpdatedAt),
	}
	if p.Details != nil {
		resp.PaymentDetails = json.RawMessage(*p.Details)
	}
	return resp
}

// NewPaymentViewResponse adds the refund totals of view.
func NewPaymentViewResponse(view *ports.PaymentView) PaymentResponse {
	resp := NewPaymentResponse(view.Payment)
	refunded := domain.FormatAmount(view.RefundedTotal)
	balance := domain.FormatAmount(view.RefundableBalance)
	resp.RefundedTotal = &refunded
	resp.RefundableBalance = &balance
	return resp
}

func NewRefundResponse(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:             r.ID.String(),
		PaymentID:      r.PaymentID.String(),
		Amount:         domain.FormatAmount(r.Amount),
		ReasonCategory: string(r.ReasonCategory),
		Reason:         r.Reason(),
		RefundMethod:   string(r.Method),
		Status:         string(r.Status),
		ProcessedBy:    uuidString(r.ProcessedBy),
		Notes:          r.Notes,
		CreatedAt:      formatTime(r.CreatedAt),
		UpdatedAt:      formatTimePtr(r.UpdatedAt),
	}
}

func NewRefundResultResponse(res *ports.RefundResult) RefundResultResponse {
	return RefundResultResponse{
		Refund:            NewRefundResponse(res.Refund),
		RefundableBalance: domain.FormatAmount(res.RefundableBalance),
		PaymentStatus:     string(res.PaymentStatus),
		Warnings:          res.Warnings,
	}
}

func NewAuditEntryResponse(e *domain.AuditEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:        e.ID.String(),
		PaymentID: e.PaymentID.String(),
		Action:    string(e.Action),
		OldStatus: e.OldStatus,
		NewStatus: e.NewStatus,
		Notes:     e.Notes,
		Actor:     e.Actor(),
		CreatedAt: formatTime(e.CreatedAt),
	}
	if e.Details != nil {
		resp.Details = json.RawMessage(*e.Details)
	}
	return resp
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
