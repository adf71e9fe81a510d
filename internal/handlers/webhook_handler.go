package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

// WebhookHandler receives processor webhook deliveries
type WebhookHandler struct {
	webhooks *services.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleWebhook handles POST /webhooks/processor. A bad signature is a
// 400 with nothing persisted; everything after verification returns 200
// so the processor does not retry events we already hold durably.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Failed to read payload",
			Message: err.Error(),
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Razorpay-Signature")
	}

	event, err := h.webhooks.Ingest(c.Request.Context(), payload, signature)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidSignature) {
			status = http.StatusBadRequest
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "Webhook rejected",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"eventId":  event.ProcessorEventID,
	})
}
