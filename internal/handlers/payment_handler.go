package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// PaymentHandler handles payment order HTTP requests
type PaymentHandler struct {
	orchestrator *services.PaymentOrchestrator
	escrow       *services.EscrowStrategy
	refunds      *services.RefundService
	ledger       *services.LedgerService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(orchestrator *services.PaymentOrchestrator, escrow *services.EscrowStrategy, refunds *services.RefundService, ledger *services.LedgerService) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		escrow:       escrow,
		refunds:      refunds,
		ledger:       ledger,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	order := &models.PaymentOrder{
		PayerID:     req.PayerID,
		RecipientID: req.RecipientID,
		Flow:        req.Flow,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	result, err := h.orchestrator.InitiatePayment(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "Failed to initiate payment",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, models.CreatePaymentResponse{
		Order:        order,
		IntentID:     result.IntentID,
		ClientSecret: result.ClientSecret,
	})
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment ID",
			Message: err.Error(),
		})
		return
	}

	order, err := h.orchestrator.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Payment not found",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, order)
}

// ReleasePayment handles POST /api/v1/payments/:id/release
func (h *PaymentHandler) ReleasePayment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment ID",
			Message: err.Error(),
		})
		return
	}

	var req models.ReleaseRequest
	_ = c.ShouldBindJSON(&req)
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	if err := h.escrow.ReleaseHold(c.Request.Context(), orderID, reason); err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Payment not releasable",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to release payment",
			Message: err.Error(),
		})
		return
	}

	order, err := h.orchestrator.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to load payment",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, order)
}

// RequestRefund handles POST /api/v1/payments/:id/refunds
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment ID",
			Message: err.Error(),
		})
		return
	}

	var req models.CreateRefundRequest
	_ = c.ShouldBindJSON(&req)

	refund, err := h.refunds.RequestRefund(c.Request.Context(), orderID, req.AmountCents, req.Reason)
	if err != nil {
		if errors.Is(err, models.ErrRefundNotEligible) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Refund not eligible",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to request refund",
			Message: err.Error(),
		})
		return
	}

	// Execution is kicked off inline; completion arrives by webhook.
	if err := h.refunds.ExecuteRefund(c.Request.Context(), refund.ID); err != nil {
		refund, _ = h.refunds.GetRefund(c.Request.Context(), refund.ID)
		c.JSON(http.StatusAccepted, refund)
		return
	}

	refund, _ = h.refunds.GetRefund(c.Request.Context(), refund.ID)
	c.JSON(http.StatusCreated, refund)
}

// ListRefunds handles GET /api/v1/payments/:id/refunds
func (h *PaymentHandler) ListRefunds(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment ID",
			Message: err.Error(),
		})
		return
	}

	refunds, err := h.refunds.ListRefunds(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to list refunds",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, refunds)
}

// GetLedgerEntries handles GET /api/v1/payments/:id/ledger
func (h *PaymentHandler) GetLedgerEntries(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payment ID",
			Message: err.Error(),
		})
		return
	}

	entries, err := h.ledger.EntriesForOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to load ledger entries",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, entries)
}
