package handler

import (
	"payment-ledger/internal/adapter/http/dto"
	"payment-ledger/internal/adapter/http/middleware"
	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// RefundHandler handles refund endpoints.
type RefundHandler struct {
	lifecycle ports.LifecycleService
	query     ports.LedgerQueryService
}

func NewRefundHandler(lifecycle ports.LifecycleService, query ports.LedgerQueryService) *RefundHandler {
	return &RefundHandler{lifecycle: lifecycle, query: query}
}

// IssueRefund handles POST /api/v1/admin/payments/:id/refunds.
func (h *RefundHandler) IssueRefund(c *gin.Context) {
	paymentID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RefundRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lifecycle.IssueRefund(c.Request.Context(), ports.RefundRequest{
		PaymentID:         paymentID,
		Amount:            amount,
		ReasonCategory:    domain.RefundReason(req.ReasonCategory),
		CustomReason:      req.CustomReason,
		Method:            domain.RefundMethod(req.RefundMethod),
		Notes:             req.Notes,
		Actor:             middleware.ActorFrom(c),
		NotifyCustomer:    req.NotifyCustomer,
		UpdateOrderStatus: req.UpdateOrderStatus,
		Deferred:          req.Deferred,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewRefundResultResponse(result))
}

// ListRefunds handles GET /api/v1/admin/payments/:id/refunds.
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	paymentID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	refunds, err := h.query.ListRefunds(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.RefundResponse, 0, len(refunds))
	for i := range refunds {
		items = append(items, dto.NewRefundResponse(&refunds[i]))
	}
	response.OK(c, items)
}

// ResolveRefund handles POST /api/v1/admin/refunds/:id/resolve.
func (h *RefundHandler) ResolveRefund(c *gin.Context) {
	refundID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ResolveRefundRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lifecycle.ResolveRefund(c.Request.Context(), ports.ResolveRefundRequest{
		RefundID:          refundID,
		Status:            domain.RefundStatus(req.Status),
		Notes:             req.Notes,
		Actor:             middleware.ActorFrom(c),
		NotifyCustomer:    req.NotifyCustomer,
		UpdateOrderStatus: req.UpdateOrderStatus,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewRefundResultResponse(result))
}
