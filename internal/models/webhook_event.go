package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookState represents webhook event processing state
type WebhookState string

const (
	WebhookReceived   WebhookState = "RECEIVED"
	WebhookProcessing WebhookState = "PROCESSING"
	WebhookProcessed  WebhookState = "PROCESSED"
	WebhookFailed     WebhookState = "FAILED"
)

// MaxWebhookRetries caps reprocessing attempts for failed events.
const MaxWebhookRetries = 5

var webhookTransitions = map[WebhookState][]WebhookState{
	WebhookReceived:   {WebhookProcessing},
	WebhookProcessing: {WebhookProcessed, WebhookFailed},
	WebhookFailed:     {WebhookProcessing},
	WebhookProcessed:  {},
}

// WebhookEvent is a durable record of a processor webhook delivery.
// ProcessorEventID is unique so redeliveries collapse onto one row.
type WebhookEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	ProcessorEventID string `gorm:"type:varchar(255);not null;uniqueIndex:uix_webhook_events_processor" json:"processorEventId"`
	EventType        string `gorm:"type:varchar(100);not null;index:idx_webhook_events_type" json:"eventType"`
	Payload          JSONB  `gorm:"type:jsonb;not null" json:"payload"`

	State        WebhookState `gorm:"type:varchar(30);not null;default:'RECEIVED';index:idx_webhook_events_state" json:"state"`
	ProcessedAt  *time.Time   `json:"processedAt,omitempty"`
	ErrorMessage string       `gorm:"type:text" json:"errorMessage,omitempty"`
	RetryCount   int          `gorm:"default:0" json:"retryCount"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_webhook_events_created" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// CanTransition reports whether the transition table allows the move.
func (e *WebhookEvent) CanTransition(to WebhookState) bool {
	for _, s := range webhookTransitions[e.State] {
		if s == to {
			return true
		}
	}
	return false
}

// MarkProcessing flags the event as in flight and counts the attempt.
func (e *WebhookEvent) MarkProcessing() error {
	if !e.CanTransition(WebhookProcessing) {
		return &InvalidTransitionError{Entity: "webhook_event", From: string(e.State), To: string(WebhookProcessing)}
	}
	e.State = WebhookProcessing
	e.RetryCount++
	return nil
}

// MarkProcessed records successful handling.
func (e *WebhookEvent) MarkProcessed() {
	now := time.Now()
	e.State = WebhookProcessed
	e.ProcessedAt = &now
	e.ErrorMessage = ""
}

// MarkFailed records a handler error.
func (e *WebhookEvent) MarkFailed(err error) {
	e.State = WebhookFailed
	if err != nil {
		e.ErrorMessage = err.Error()
	}
}

// CanRetry reports whether a failed event is still retryable.
func (e *WebhookEvent) CanRetry() bool {
	return e.State == WebhookFailed && e.RetryCount < MaxWebhookRetries
}

// ObjectID extracts the processor object id from the payload
// (payload.data.object.id).
func (e *WebhookEvent) ObjectID() string {
	data, ok := e.Payload["data"].(map[string]interface{})
	if !ok {
		return ""
	}
	object, ok := data["object"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := object["id"].(string)
	return id
}
