package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// PayoutHandler handles payout HTTP requests
type PayoutHandler struct {
	payouts *services.PayoutService
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(payouts *services.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// GetPayout handles GET /api/v1/payouts/:id
func (h *PayoutHandler) GetPayout(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payout ID",
			Message: err.Error(),
		})
		return
	}

	payout, err := h.payouts.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Payout not found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, payout)
}

// ExecutePayout handles POST /api/v1/payouts/:id/execute
func (h *PayoutHandler) ExecutePayout(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payout ID",
			Message: err.Error(),
		})
		return
	}

	if err := h.payouts.ExecutePayout(c.Request.Context(), payoutID); err != nil {
		var busy *locks.AcquisitionError
		switch {
		case errors.As(err, &busy):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Payout execution already in progress",
				Message: err.Error(),
			})
		case errors.Is(err, models.ErrPayoutNotExecutable):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Payout not executable",
				Message: err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "Failed to execute payout",
				Message: err.Error(),
			})
		}
		return
	}

	payout, err := h.payouts.GetPayout(c.Request.Context(), payoutID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to load payout",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, payout)
}

// RetryPayout handles POST /api/v1/payouts/:id/retry
func (h *PayoutHandler) RetryPayout(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payout ID",
			Message: err.Error(),
		})
		return
	}

	payout, err := h.payouts.RetryPayout(c.Request.Context(), payoutID)
	if err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "Payout not retryable",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to retry payout",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, payout)
}

// CancelPayout handles POST /api/v1/payouts/:id/cancel
func (h *PayoutHandler) CancelPayout(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid payout ID",
			Message: err.Error(),
		})
		return
	}

	payout, err := h.payouts.CancelPayout(c.Request.Context(), payoutID)
	if err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "Payout not cancellable",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, payout)
}
