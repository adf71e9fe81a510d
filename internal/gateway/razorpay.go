package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayAdapter implements ProcessorAdapter for Razorpay. Razorpay calls
// transfers to linked accounts "transfers" as well, so the shapes line up
// with the Stripe adapter.
type RazorpayAdapter struct {
	client        *razorpay.Client
	webhookSecret string
}

// NewRazorpayAdapter creates a new Razorpay adapter
func NewRazorpayAdapter(keyID, keySecret, webhookSecret string) (*RazorpayAdapter, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("razorpay key id and secret are required")
	}
	return &RazorpayAdapter{
		client:        razorpay.NewClient(keyID, keySecret),
		webhookSecret: webhookSecret,
	}, nil
}

// GetType returns the processor type
func (a *RazorpayAdapter) GetType() ProcessorType {
	return ProcessorRazorpay
}

// CreatePaymentIntent creates a Razorpay order, the equivalent of an intent
func (a *RazorpayAdapter) CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*IntentResult, error) {
	data := map[string]interface{}{
		"amount":   req.AmountCents,
		"currency": strings.ToUpper(req.Currency),
		"notes":    notesFromMetadata(req.Metadata, req.IdempotencyKey),
	}
	if req.IdempotencyKey != "" {
		data["receipt"] = req.IdempotencyKey
	}

	order, err := a.client.Order.Create(data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}

	return &IntentResult{
		IntentID: stringField(order, "id"),
		Status:   IntentStatusRequiresAction,
	}, nil
}

// GetPaymentIntent fetches a Razorpay order and derives a normalized status
func (a *RazorpayAdapter) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	order, err := a.client.Order.Fetch(intentID, nil, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}

	status := IntentStatusRequiresAction
	switch stringField(order, "status") {
	case "paid":
		status = IntentStatusSucceeded
	case "attempted":
		status = IntentStatusProcessing
	}

	amount, _ := order["amount"].(float64)
	return &Intent{
		ID:          intentID,
		Status:      status,
		AmountCents: int64(amount),
		Metadata:    metadataFromNotes(order["notes"]),
	}, nil
}

// CancelPaymentIntent is a no-op for Razorpay orders, which expire on
// their own when unpaid.
func (a *RazorpayAdapter) CancelPaymentIntent(ctx context.Context, intentID string) error {
	return nil
}

// CreateRefund refunds a captured Razorpay payment
func (a *RazorpayAdapter) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	data := map[string]interface{}{
		"notes": notesFromMetadata(req.Metadata, req.IdempotencyKey),
	}
	if req.Reason != "" {
		data["notes"].(map[string]interface{})["reason"] = req.Reason
	}

	r, err := a.client.Payment.Refund(req.ChargeID, int(req.AmountCents), data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}
	return &RefundResult{
		RefundID: stringField(r, "id"),
		Status:   stringField(r, "status"),
	}, nil
}

// CreateTransfer moves funds to a linked account
func (a *RazorpayAdapter) CreateTransfer(ctx context.Context, req *TransferRequest) (*Transfer, error) {
	data := map[string]interface{}{
		"account":  req.DestinationAccountID,
		"amount":   req.AmountCents,
		"currency": strings.ToUpper(req.Currency),
		"notes":    notesFromMetadata(req.Metadata, req.IdempotencyKey),
	}

	t, err := a.client.Transfer.Create(data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}
	return mapRazorpayTransfer(t), nil
}

// GetTransfer fetches a transfer by id
func (a *RazorpayAdapter) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	t, err := a.client.Transfer.Fetch(transferID, nil, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}
	return mapRazorpayTransfer(t), nil
}

// ListRecentTransfers lists transfers created since the cutoff
func (a *RazorpayAdapter) ListRecentTransfers(ctx context.Context, since time.Time, limit int) ([]Transfer, error) {
	data := map[string]interface{}{
		"from":  since.Unix(),
		"count": limit,
	}
	res, err := a.client.Transfer.All(data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}

	items, _ := res["items"].([]interface{})
	transfers := make([]Transfer, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		transfers = append(transfers, *mapRazorpayTransfer(m))
	}
	return transfers, nil
}

// CreateCustomer creates a Razorpay customer and returns its id
func (a *RazorpayAdapter) CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error) {
	data := map[string]interface{}{
		"fail_existing": "0",
		"notes":         notesFromMetadata(req.Metadata, ""),
	}
	if req.Email != "" {
		data["email"] = req.Email
	}
	if req.Name != "" {
		data["name"] = req.Name
	}

	c, err := a.client.Customer.Create(data, nil)
	if err != nil {
		return "", mapRazorpayError(err)
	}
	return stringField(c, "id"), nil
}

// CreateSubscription starts a Razorpay subscription on a plan
func (a *RazorpayAdapter) CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*SubscriptionResult, error) {
	data := map[string]interface{}{
		"plan_id":     req.PriceID,
		"customer_id": req.CustomerID,
		"total_count": 120,
		"notes":       notesFromMetadata(req.Metadata, req.IdempotencyKey),
	}

	s, err := a.client.Subscription.Create(data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}
	return mapRazorpaySubscription(s), nil
}

// CancelSubscription cancels a Razorpay subscription
func (a *RazorpayAdapter) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionResult, error) {
	data := map[string]interface{}{
		"cancel_at_cycle_end": 0,
	}
	if atPeriodEnd {
		data["cancel_at_cycle_end"] = 1
	}

	s, err := a.client.Subscription.Cancel(subscriptionID, data, nil)
	if err != nil {
		return nil, mapRazorpayError(err)
	}
	return mapRazorpaySubscription(s), nil
}

// VerifyWebhook checks the X-Razorpay-Signature HMAC before parsing
func (a *RazorpayAdapter) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, fmt.Errorf("webhook signature verification failed")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	eventType := stringField(body, "event")
	createdAt, _ := body["created_at"].(float64)
	return &WebhookEvent{
		EventID:   fmt.Sprintf("%s-%d", eventType, int64(createdAt)),
		EventType: eventType,
		Payload:   body,
		Raw:       payload,
	}, nil
}

func mapRazorpayTransfer(t map[string]interface{}) *Transfer {
	amount, _ := t["amount"].(float64)
	created, _ := t["created_at"].(float64)
	return &Transfer{
		ID:          stringField(t, "id"),
		AmountCents: int64(amount),
		Currency:    stringField(t, "currency"),
		Destination: stringField(t, "recipient"),
		Reversed:    stringField(t, "status") == "reversed",
		Metadata:    metadataFromNotes(t["notes"]),
		Created:     time.Unix(int64(created), 0),
	}
}

func mapRazorpaySubscription(s map[string]interface{}) *SubscriptionResult {
	result := &SubscriptionResult{
		SubscriptionID: stringField(s, "id"),
		Status:         stringField(s, "status"),
	}
	if start, ok := s["current_start"].(float64); ok && start > 0 {
		t := time.Unix(int64(start), 0)
		result.CurrentPeriodStart = &t
	}
	if end, ok := s["current_end"].(float64); ok && end > 0 {
		t := time.Unix(int64(end), 0)
		result.CurrentPeriodEnd = &t
	}
	return result
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func notesFromMetadata(metadata map[string]string, idempotencyKey string) map[string]interface{} {
	notes := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		notes[k] = v
	}
	if idempotencyKey != "" {
		notes["idempotency_key"] = idempotencyKey
	}
	return notes
}

func metadataFromNotes(notes interface{}) map[string]string {
	m, ok := notes.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// mapRazorpayError normalizes SDK errors. The SDK surfaces plain errors,
// so classification is by message shape; anything that looks like a
// server or connectivity fault is retryable.
func mapRazorpayError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate"):
		return NewProcessorError(CodeRateLimited, msg, true)
	case strings.Contains(lower, "server error"), strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection"):
		return NewProcessorError(CodeAPIUnavailable, msg, true)
	case strings.Contains(lower, "not found"):
		return NewProcessorError(CodeNotFound, msg, false)
	default:
		return NewProcessorError(CodeInvalidRequest, msg, false)
	}
}
