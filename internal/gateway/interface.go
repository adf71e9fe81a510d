package gateway

import (
	"context"
	"time"
)

// ProcessorType identifies the payment processor behind an adapter
type ProcessorType string

const (
	ProcessorStripe   ProcessorType = "STRIPE"
	ProcessorRazorpay ProcessorType = "RAZORPAY"
)

// Normalized intent statuses across processors
const (
	IntentStatusRequiresAction = "requires_action"
	IntentStatusProcessing     = "processing"
	IntentStatusSucceeded      = "succeeded"
	IntentStatusCanceled       = "canceled"
	IntentStatusFailed         = "failed"
)

// CreateIntentRequest is a request to start collecting a payment
type CreateIntentRequest struct {
	AmountCents    int64             `json:"amountCents"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description,omitempty"`
	CustomerID     string            `json:"customerId,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// IntentResult is the processor's view of a created intent
type IntentResult struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Status       string `json:"status"`
}

// Intent is the processor's current view of a payment intent
type Intent struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amountCents"`
	ChargeID    string            `json:"chargeId,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RefundRequest is a request to return funds to the payer
type RefundRequest struct {
	IntentID       string            `json:"intentId,omitempty"`
	ChargeID       string            `json:"chargeId,omitempty"`
	AmountCents    int64             `json:"amountCents"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RefundResult is the processor's view of a created refund
type RefundResult struct {
	RefundID string `json:"refundId"`
	Status   string `json:"status"`
}

// TransferRequest is a request to move funds to a connected account
type TransferRequest struct {
	DestinationAccountID string            `json:"destinationAccountId"`
	AmountCents          int64             `json:"amountCents"`
	Currency             string            `json:"currency"`
	IdempotencyKey       string            `json:"idempotencyKey,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// Transfer is the processor's view of a transfer
type Transfer struct {
	ID          string            `json:"id"`
	AmountCents int64             `json:"amountCents"`
	Currency    string            `json:"currency"`
	Destination string            `json:"destination,omitempty"`
	Reversed    bool              `json:"reversed"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Created     time.Time         `json:"created"`
}

// CustomerRequest creates a processor-side customer record
type CustomerRequest struct {
	Email    string            `json:"email,omitempty"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubscriptionRequest starts a recurring billing agreement
type SubscriptionRequest struct {
	CustomerID     string            `json:"customerId"`
	PriceID        string            `json:"priceId"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SubscriptionResult is the processor's view of a subscription
type SubscriptionResult struct {
	SubscriptionID     string     `json:"subscriptionId"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
}

// WebhookEvent is a verified, parsed webhook delivery
type WebhookEvent struct {
	EventID   string                 `json:"eventId"`
	EventType string                 `json:"eventType"`
	Payload   map[string]interface{} `json:"payload"`
	Raw       []byte                 `json:"-"`
}

// ProcessorAdapter abstracts the payment processor. One implementation per
// processor; all amounts are integer minor units.
type ProcessorAdapter interface {
	GetType() ProcessorType

	CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*IntentResult, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error

	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	CreateTransfer(ctx context.Context, req *TransferRequest) (*Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*Transfer, error)
	ListRecentTransfers(ctx context.Context, since time.Time, limit int) ([]Transfer, error)

	CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error)
	CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*SubscriptionResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionResult, error)

	// VerifyWebhook checks the signature before anything is persisted.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
