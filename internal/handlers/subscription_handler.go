package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// SubscriptionHandler handles subscription HTTP requests
type SubscriptionHandler struct {
	subscription *services.SubscriptionStrategy
	subs         services.SubscriptionStore
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscription *services.SubscriptionStrategy, subs services.SubscriptionStore) *SubscriptionHandler {
	return &SubscriptionHandler{subscription: subscription, subs: subs}
}

// CreateSubscription handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req models.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	sub := &models.Subscription{
		PayerID:             req.PayerID,
		RecipientID:         req.RecipientID,
		ProcessorPriceID:    req.ProcessorPriceID,
		ProcessorCustomerID: req.CustomerID,
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
		BillingInterval:     req.BillingInterval,
		State:               models.SubscriptionPending,
	}
	if err := h.subscription.CreateSubscription(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "Failed to create subscription",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// GetSubscription handles GET /api/v1/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid subscription ID",
			Message: err.Error(),
		})
		return
	}

	sub, err := h.subs.GetByID(c.Request.Context(), subID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Subscription not found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// CancelSubscription handles POST /api/v1/subscriptions/:id/cancel
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid subscription ID",
			Message: err.Error(),
		})
		return
	}

	var req models.CancelSubscriptionRequest
	_ = c.ShouldBindJSON(&req)

	sub, err := h.subscription.CancelSubscription(c.Request.Context(), subID, req.AtPeriodEnd)
	if err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "Failed to cancel subscription",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, sub)
}
