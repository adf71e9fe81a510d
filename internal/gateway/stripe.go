package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/stripe/stripe-go/v76/transfer"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeAdapter implements ProcessorAdapter for Stripe
type StripeAdapter struct {
	secretKey     string
	webhookSecret string
}

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(secretKey, webhookSecret string) (*StripeAdapter, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	return &StripeAdapter{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
	}, nil
}

// GetType returns the processor type
func (a *StripeAdapter) GetType() ProcessorType {
	return ProcessorStripe
}

// CreatePaymentIntent creates a Stripe PaymentIntent
func (a *StripeAdapter) CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*IntentResult, error) {
	stripe.Key = a.secretKey

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	return &IntentResult{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapIntentStatus(pi.Status),
	}, nil
}

// GetPaymentIntent fetches the processor's current view of an intent
func (a *StripeAdapter) GetPaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	stripe.Key = a.secretKey

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}

	intent := &Intent{
		ID:          pi.ID,
		Status:      mapIntentStatus(pi.Status),
		AmountCents: pi.Amount,
		Metadata:    pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.ChargeID = pi.LatestCharge.ID
	}
	return intent, nil
}

// CancelPaymentIntent cancels an intent that has not been captured
func (a *StripeAdapter) CancelPaymentIntent(ctx context.Context, intentID string) error {
	stripe.Key = a.secretKey

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(intentID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

// CreateRefund creates a Stripe refund against an intent or charge
func (a *StripeAdapter) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	stripe.Key = a.secretKey

	params := &stripe.RefundParams{
		Amount: stripe.Int64(req.AmountCents),
	}
	if req.IntentID != "" {
		params.PaymentIntent = stripe.String(req.IntentID)
	} else if req.ChargeID != "" {
		params.Charge = stripe.String(req.ChargeID)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &RefundResult{RefundID: r.ID, Status: string(r.Status)}, nil
}

// CreateTransfer moves funds to a connected account
func (a *StripeAdapter) CreateTransfer(ctx context.Context, req *TransferRequest) (*Transfer, error) {
	stripe.Key = a.secretKey

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.DestinationAccountID),
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	t, err := transfer.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapTransfer(t), nil
}

// GetTransfer fetches a transfer by id
func (a *StripeAdapter) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	stripe.Key = a.secretKey

	params := &stripe.TransferParams{}
	params.Context = ctx
	t, err := transfer.Get(transferID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapTransfer(t), nil
}

// ListRecentTransfers lists transfers created since the cutoff, newest
// first, up to limit.
func (a *StripeAdapter) ListRecentTransfers(ctx context.Context, since time.Time, limit int) ([]Transfer, error) {
	stripe.Key = a.secretKey

	params := &stripe.TransferListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: since.Unix(),
		},
	}
	params.Limit = stripe.Int64(int64(limit))
	params.Context = ctx

	var transfers []Transfer
	iter := transfer.List(params)
	for iter.Next() {
		transfers = append(transfers, *mapTransfer(iter.Transfer()))
		if len(transfers) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return transfers, nil
}

// CreateCustomer creates a Stripe customer and returns its id
func (a *StripeAdapter) CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error) {
	stripe.Key = a.secretKey

	params := &stripe.CustomerParams{}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	c, err := customer.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return c.ID, nil
}

// CreateSubscription starts a Stripe subscription
func (a *StripeAdapter) CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*SubscriptionResult, error) {
	stripe.Key = a.secretKey

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := subscription.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapSubscription(s), nil
}

// CancelSubscription cancels a subscription, either at period end or now
func (a *StripeAdapter) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionResult, error) {
	stripe.Key = a.secretKey

	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		s, err := subscription.Update(subscriptionID, params)
		if err != nil {
			return nil, mapStripeError(err)
		}
		return mapSubscription(s), nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	s, err := subscription.Cancel(subscriptionID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapSubscription(s), nil
}

// VerifyWebhook validates the Stripe-Signature header and parses the event
func (a *StripeAdapter) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, a.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	var full map[string]interface{}
	if err := json.Unmarshal(payload, &full); err != nil {
		full = map[string]interface{}{"raw": string(payload)}
	}

	return &WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   full,
		Raw:       event.Data.Raw,
	}, nil
}

func mapTransfer(t *stripe.Transfer) *Transfer {
	out := &Transfer{
		ID:          t.ID,
		AmountCents: t.Amount,
		Currency:    string(t.Currency),
		Reversed:    t.Reversed,
		Metadata:    t.Metadata,
		Created:     time.Unix(t.Created, 0),
	}
	if t.Destination != nil {
		out.Destination = t.Destination.ID
	}
	return out
}

func mapSubscription(s *stripe.Subscription) *SubscriptionResult {
	result := &SubscriptionResult{
		SubscriptionID: s.ID,
		Status:         string(s.Status),
	}
	if s.CurrentPeriodStart > 0 {
		start := time.Unix(s.CurrentPeriodStart, 0)
		result.CurrentPeriodStart = &start
	}
	if s.CurrentPeriodEnd > 0 {
		end := time.Unix(s.CurrentPeriodEnd, 0)
		result.CurrentPeriodEnd = &end
	}
	return result
}

func mapIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentStatusCanceled
	case stripe.PaymentIntentStatusProcessing:
		return IntentStatusProcessing
	default:
		return IntentStatusRequiresAction
	}
}

// mapStripeError normalizes Stripe SDK errors. Rate limits, connectivity
// faults, and 5xx responses are retryable; card and request errors are not.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return NewProcessorError(CodeNetwork, err.Error(), true)
	}

	if stripeErr.HTTPStatusCode == 429 {
		return NewProcessorError(CodeRateLimited, stripeErr.Msg, true)
	}
	switch stripeErr.Code {
	case stripe.ErrorCodeRateLimit:
		return NewProcessorError(CodeRateLimited, stripeErr.Msg, true)
	case stripe.ErrorCodeLockTimeout, stripe.ErrorCodeIdempotencyKeyInUse:
		return NewProcessorError(string(stripeErr.Code), stripeErr.Msg, true)
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeAPI:
		return NewProcessorError(CodeAPIUnavailable, stripeErr.Msg, true)
	case stripe.ErrorTypeCard:
		return NewProcessorError(string(stripeErr.Code), stripeErr.Msg, false)
	}
	if stripeErr.HTTPStatusCode >= 500 {
		return NewProcessorError(CodeAPIUnavailable, stripeErr.Msg, true)
	}
	code := string(stripeErr.Code)
	if code == "" {
		code = CodeInvalidRequest
	}
	return NewProcessorError(code, stripeErr.Msg, false)
}
