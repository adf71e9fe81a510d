package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentFlow selects the strategy used to move money for an order
type PaymentFlow string

const (
	FlowDirect       PaymentFlow = "DIRECT"
	FlowEscrow       PaymentFlow = "ESCROW"
	FlowSubscription PaymentFlow = "SUBSCRIPTION"
)

// OrderState represents the payment order lifecycle state
type OrderState string

const (
	OrderDraft             OrderState = "DRAFT"
	OrderPending           OrderState = "PENDING"
	OrderProcessing        OrderState = "PROCESSING"
	OrderCaptured          OrderState = "CAPTURED"
	OrderHeld              OrderState = "HELD"
	OrderReleased          OrderState = "RELEASED"
	OrderSettled           OrderState = "SETTLED"
	OrderPartiallyRefunded OrderState = "PARTIALLY_REFUNDED"
	OrderRefunded          OrderState = "REFUNDED"
	OrderFailed            OrderState = "FAILED"
	OrderCancelled         OrderState = "CANCELLED"
)

var orderTransitions = map[OrderState][]OrderState{
	OrderDraft:             {OrderPending, OrderCancelled},
	OrderPending:           {OrderProcessing, OrderFailed, OrderCancelled},
	OrderProcessing:        {OrderCaptured, OrderHeld, OrderFailed, OrderCancelled},
	OrderCaptured:          {OrderSettled, OrderPartiallyRefunded, OrderRefunded},
	OrderHeld:              {OrderReleased, OrderPartiallyRefunded, OrderRefunded},
	OrderReleased:          {OrderSettled, OrderPartiallyRefunded, OrderRefunded},
	OrderSettled:           {OrderPartiallyRefunded, OrderRefunded},
	OrderPartiallyRefunded: {OrderPartiallyRefunded, OrderRefunded},
	OrderFailed:            {OrderPending},
	OrderRefunded:          {},
	OrderCancelled:         {},
}

// RefundableOrderStates lists the states in which an order holds captured
// funds that can still be returned.
var RefundableOrderStates = []OrderState{
	OrderCaptured, OrderHeld, OrderReleased, OrderSettled, OrderPartiallyRefunded,
}

// PaymentOrder is the root entity of a single payment
type PaymentOrder struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PayerID     uuid.UUID   `gorm:"type:uuid;not null;index:idx_payment_orders_payer" json:"payerId"`
	RecipientID uuid.UUID   `gorm:"type:uuid;not null;index:idx_payment_orders_recipient" json:"recipientId"`
	Flow        PaymentFlow `gorm:"type:varchar(20);not null" json:"flow"`

	AmountCents      int64  `gorm:"not null" json:"amountCents"`
	PlatformFeeCents int64  `gorm:"default:0" json:"platformFeeCents"`
	Currency         string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	State   OrderState `gorm:"type:varchar(30);not null;default:'DRAFT';index:idx_payment_orders_state" json:"state"`
	Version int        `gorm:"default:0" json:"version"`

	// Processor references
	ProcessorIntentID string `gorm:"type:varchar(255);index:idx_payment_orders_intent" json:"processorIntentId,omitempty"`
	ProcessorChargeID string `gorm:"type:varchar(255)" json:"processorChargeId,omitempty"`

	// Subscription linkage for invoice-generated child orders
	SubscriptionID     *uuid.UUID `gorm:"type:uuid;index:idx_payment_orders_subscription" json:"subscriptionId,omitempty"`
	ProcessorInvoiceID string     `gorm:"type:varchar(255);index:idx_payment_orders_invoice" json:"processorInvoiceId,omitempty"`

	CapturedAt  *time.Time `json:"capturedAt,omitempty"`
	ReleasedAt  *time.Time `json:"releasedAt,omitempty"`
	SettledAt   *time.Time `json:"settledAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	FailureCode    string `gorm:"type:varchar(100)" json:"failureCode,omitempty"`
	FailureMessage string `gorm:"type:text" json:"failureMessage,omitempty"`

	Description string `gorm:"type:text" json:"description,omitempty"`
	Metadata    JSONB  `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_payment_orders_created" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Hold    *FundHold `gorm:"foreignKey:PaymentOrderID" json:"hold,omitempty"`
	Refunds []Refund  `gorm:"foreignKey:PaymentOrderID" json:"refunds,omitempty"`
	Payouts []Payout  `gorm:"foreignKey:PaymentOrderID" json:"payouts,omitempty"`
}

// TableName specifies the table name for PaymentOrder
func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// CanTransition reports whether the transition table allows moving to the
// target state.
func (o *PaymentOrder) CanTransition(to OrderState) bool {
	for _, s := range orderTransitions[o.State] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the target state, stamping lifecycle
// timestamps. It does not persist.
func (o *PaymentOrder) Transition(to OrderState) error {
	if !o.CanTransition(to) {
		return &InvalidTransitionError{Entity: "payment_order", From: string(o.State), To: string(to)}
	}
	now := time.Now()
	switch to {
	case OrderCaptured, OrderHeld:
		o.CapturedAt = &now
	case OrderReleased:
		o.ReleasedAt = &now
	case OrderSettled:
		o.SettledAt = &now
	case OrderFailed:
		o.FailedAt = &now
	case OrderCancelled:
		o.CancelledAt = &now
	}
	o.State = to
	return nil
}

// IsRefundable reports whether the order state admits any refund at all.
func (o *PaymentOrder) IsRefundable() bool {
	for _, s := range RefundableOrderStates {
		if o.State == s {
			return true
		}
	}
	return false
}

// FundHold tracks escrowed funds awaiting release
type FundHold struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentOrderID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_fund_holds_order" json:"paymentOrderId"`

	AmountCents int64  `gorm:"not null" json:"amountCents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	ExpiresAt  time.Time  `gorm:"not null;index:idx_fund_holds_expires" json:"expiresAt"`
	Released   bool       `gorm:"default:false;index:idx_fund_holds_released" json:"released"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`

	// "manual", "expiration", or "refund"
	ReleaseReason string `gorm:"type:varchar(50)" json:"releaseReason,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for FundHold
func (FundHold) TableName() string {
	return "fund_holds"
}
