package handler

import (
	"payment-ledger/internal/adapter/http/dto"
	"payment-ledger/internal/adapter/http/middleware"
	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"
	"payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderReplayed marks a manual payment response served from the idempotency cache.
const HeaderReplayed = "Idempotent-Replayed"

// PaymentHandler handles payment ledger endpoints.
type PaymentHandler struct {
	lifecycle ports.LifecycleService
	query     ports.LedgerQueryService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(lifecycle ports.LifecycleService, query ports.LedgerQueryService) *PaymentHandler {
	return &PaymentHandler{lifecycle: lifecycle, query: query}
}

// RecordManualPayment handles POST /api/v1/admin/payments.
func (h *PaymentHandler) RecordManualPayment(c *gin.Context) {
	var req dto.ManualPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	key, err := idempotencyKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	orderID, err := optionalUUID(req.OrderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lifecycle.RecordManualPayment(c.Request.Context(), ports.ManualPaymentRequest{
		CustomerID:     uuid.MustParse(req.CustomerID),
		OrderID:        orderID,
		Method:         domain.PaymentMethod(req.PaymentMethod),
		Currency:       req.Currency,
		Amount:         amount,
		Status:         domain.PaymentStatus(req.Status),
		TransactionID:  req.TransactionID,
		Details:        req.PaymentDetails,
		Notes:          req.Notes,
		IdempotencyKey: key,
		Actor:          middleware.ActorFrom(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.ManualPaymentResponse{
		Payment:  dto.NewPaymentResponse(result.Payment),
		Warnings: result.Warnings,
	}
	if result.Replayed {
		c.Header(HeaderReplayed, "true")
		response.OK(c, resp)
		return
	}
	response.Created(c, resp)
}

// ListPayments handles GET /api/v1/admin/payments.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	params, err := listParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	payments, total, err := h.query.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	params = params.Normalized()
	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, dto.NewPaymentResponse(&payments[i]))
	}
	response.OK(c, dto.PaymentListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int((total + int64(params.PageSize) - 1) / int64(params.PageSize)),
	})
}

func listParams(c *gin.Context) (ports.PaymentListParams, error) {
	var params ports.PaymentListParams
	var err error

	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(s)
		params.Status = &status
	}
	if m := c.Query("payment_method"); m != "" {
		method := domain.PaymentMethod(m)
		params.Method = &method
	}
	if params.CustomerID, err = queryUUID(c, "customer_id"); err != nil {
		return params, err
	}
	if params.OrderID, err = queryUUID(c, "order_id"); err != nil {
		return params, err
	}
	if params.From, err = queryTime(c, "from", false); err != nil {
		return params, err
	}
	if params.To, err = queryTime(c, "to", true); err != nil {
		return params, err
	}
	if params.Page, err = queryInt(c, "page"); err != nil {
		return params, err
	}
	if params.PageSize, err = queryInt(c, "page_size"); err != nil {
		return params, err
	}
	return params, nil
}

// GetPayment handles GET /api/v1/admin/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.query.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentViewResponse(view))
}

// UpdateStatus handles PATCH /api/v1/admin/payments/:id/status.
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.StatusUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lifecycle.UpdateStatus(c.Request.Context(), ports.StatusUpdateRequest{
		PaymentID:         id,
		NewStatus:         domain.PaymentStatus(req.Status),
		Notes:             req.Notes,
		Actor:             middleware.ActorFrom(c),
		NotifyCustomer:    req.NotifyCustomer,
		UpdateLinkedOrder: req.UpdateLinkedOrder,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.StatusUpdateResponse{
		Payment:   dto.NewPaymentResponse(result.Payment),
		OldStatus: string(result.OldStatus),
		Warnings:  result.Warnings,
	})
}

// GetRefundableBalance handles GET /api/v1/admin/payments/:id/refundable-balance.
func (h *PaymentHandler) GetRefundableBalance(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	balance, err := h.lifecycle.GetRefundableBalance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{
		PaymentID:         id.String(),
		RefundableBalance: domain.FormatAmount(balance),
	})
}

// SendReceipt handles POST /api/v1/admin/payments/:id/receipt.
func (h *PaymentHandler) SendReceipt(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	entry, err := h.lifecycle.SendReceipt(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.NewAuditEntryResponse(entry))
}

// ListAuditTrail handles GET /api/v1/admin/payments/:id/audit.
func (h *PaymentHandler) ListAuditTrail(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.query.ListAuditTrail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewAuditEntryResponse(&entries[i]))
	}
	response.OK(c, items)
}
