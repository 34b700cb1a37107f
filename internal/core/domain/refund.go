package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundReason is the enumerated category of a refund.
type RefundReason string

const (
	RefundReasonCustomerRequest    RefundReason = "customer_request"
	RefundReasonDuplicate          RefundReason = "duplicate"
	RefundReasonFraudulent         RefundReason = "fraudulent"
	RefundReasonProductNotReceived RefundReason = "product_not_received"
	RefundReasonProductDefective   RefundReason = "product_defective"
	RefundReasonOrderCancelled     RefundReason = "order_cancelled"
	RefundReasonOther              RefundReason = "other"
)

func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonCustomerRequest, RefundReasonDuplicate, RefundReasonFraudulent,
		RefundReasonProductNotReceived, RefundReasonProductDefective,
		RefundReasonOrderCancelled, RefundReasonOther:
		return true
	}
	return false
}

// RefundMethod is how the money is returned to the customer.
type RefundMethod string

const (
	RefundMethodOriginal     RefundMethod = "original_method"
	RefundMethodCash         RefundMethod = "cash"
	RefundMethodBankTransfer RefundMethod = "bank_transfer"
	RefundMethodCheck        RefundMethod = "check"
	RefundMethodStoreCredit  RefundMethod = "store_credit"
	RefundMethodOther        RefundMethod = "other"
)

func (m RefundMethod) Valid() bool {
	switch m {
	case RefundMethodOriginal, RefundMethodCash, RefundMethodBankTransfer,
		RefundMethodCheck, RefundMethodStoreCredit, RefundMethodOther:
		return true
	}
	return false
}

// RefundStatus represents the lifecycle state of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

func (s RefundStatus) Valid() bool {
	return s == RefundStatusPending || s == RefundStatusCompleted || s == RefundStatusFailed
}

// IsTerminal returns true if the refund can no longer change.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusFailed
}

// CanTransitionTo allows only pending -> completed and pending -> failed.
func (s RefundStatus) CanTransitionTo(target RefundStatus) bool {
	return s == RefundStatusPending && target.IsTerminal()
}

// Refund is money returned against a payment.
// Only completed refunds count against the refundable balance.
type Refund struct {
	ID             uuid.UUID       `json:"id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	ReasonCategory RefundReason    `json:"reason_category"`
	CustomReason   *string         `json:"custom_reason,omitempty"`
	Method         RefundMethod    `json:"refund_method"`
	Status         RefundStatus    `json:"status"`
	ProcessedBy    *uuid.UUID      `json:"processed_by,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// Reason returns the free-text reason for "other" refunds, or the category.
func (r *Refund) Reason() string {
	if r.ReasonCategory == RefundReasonOther && r.CustomReason != nil {
		return *r.CustomReason
	}
	return string(r.ReasonCategory)
}
