package models

import "github.com/google/uuid"

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreatePaymentRequest starts a new payment order
type CreatePaymentRequest struct {
	PayerID     uuid.UUID   `json:"payerId" binding:"required"`
	RecipientID uuid.UUID   `json:"recipientId" binding:"required"`
	Flow        PaymentFlow `json:"flow" binding:"required"`
	AmountCents int64       `json:"amountCents" binding:"required"`
	Currency    string      `json:"currency,omitempty"`
	Description string      `json:"description,omitempty"`
	Metadata    JSONB       `json:"metadata,omitempty"`
}

// CreatePaymentResponse returns the order and the client-side handle
// needed to complete collection.
type CreatePaymentResponse struct {
	Order        *PaymentOrder `json:"order"`
	IntentID     string        `json:"intentId"`
	ClientSecret string        `json:"clientSecret,omitempty"`
}

// ReleaseRequest releases escrowed funds ahead of the hold expiry
type ReleaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateRefundRequest requests a refund. A zero amount refunds the full
// remaining balance.
type CreateRefundRequest struct {
	AmountCents int64  `json:"amountCents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CreateSubscriptionRequest starts recurring billing
type CreateSubscriptionRequest struct {
	PayerID          uuid.UUID `json:"payerId" binding:"required"`
	RecipientID      uuid.UUID `json:"recipientId" binding:"required"`
	ProcessorPriceID string    `json:"processorPriceId" binding:"required"`
	AmountCents      int64     `json:"amountCents" binding:"required"`
	Currency         string    `json:"currency,omitempty"`
	BillingInterval  string    `json:"billingInterval,omitempty"`
	CustomerID       string    `json:"customerId,omitempty"`
}

// CancelSubscriptionRequest cancels recurring billing
type CancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"atPeriodEnd"`
}

// BalanceResponse reports a ledger account balance
type BalanceResponse struct {
	AccountID    uuid.UUID `json:"accountId"`
	AccountType  string    `json:"accountType"`
	Currency     string    `json:"currency"`
	BalanceCents int64     `json:"balanceCents"`
}
