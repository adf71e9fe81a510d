package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionState represents the subscription lifecycle state
type SubscriptionState string

const (
	SubscriptionPending   SubscriptionState = "PENDING"
	SubscriptionActive    SubscriptionState = "ACTIVE"
	SubscriptionPastDue   SubscriptionState = "PAST_DUE"
	SubscriptionCancelled SubscriptionState = "CANCELLED"
)

var subscriptionTransitions = map[SubscriptionState][]SubscriptionState{
	SubscriptionPending:   {SubscriptionActive, SubscriptionCancelled},
	SubscriptionActive:    {SubscriptionPastDue, SubscriptionCancelled},
	SubscriptionPastDue:   {SubscriptionActive, SubscriptionCancelled},
	SubscriptionCancelled: {},
}

// Subscription is a recurring billing agreement managed by the processor.
// Each paid invoice spawns a child PaymentOrder.
type Subscription struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PayerID     uuid.UUID `gorm:"type:uuid;not null;index:idx_subscriptions_payer" json:"payerId"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_subscriptions_recipient" json:"recipientId"`

	ProcessorSubscriptionID string `gorm:"type:varchar(255);uniqueIndex:uix_subscriptions_processor" json:"processorSubscriptionId,omitempty"`
	ProcessorCustomerID     string `gorm:"type:varchar(255)" json:"processorCustomerId,omitempty"`
	ProcessorPriceID        string `gorm:"type:varchar(255)" json:"processorPriceId,omitempty"`

	AmountCents     int64  `gorm:"not null" json:"amountCents"`
	Currency        string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BillingInterval string `gorm:"type:varchar(20);default:'month'" json:"billingInterval"`

	State   SubscriptionState `gorm:"type:varchar(30);not null;default:'PENDING';index:idx_subscriptions_state" json:"state"`
	Version int               `gorm:"default:0" json:"version"`

	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancelAtPeriodEnd"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`

	LastInvoiceID string     `gorm:"type:varchar(255)" json:"lastInvoiceId,omitempty"`
	LastPaymentAt *time.Time `json:"lastPaymentAt,omitempty"`

	Metadata JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for Subscription
func (Subscription) TableName() string {
	return "subscriptions"
}

// CanTransition reports whether the transition table allows the move.
func (s *Subscription) CanTransition(to SubscriptionState) bool {
	for _, t := range subscriptionTransitions[s.State] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves the subscription to the target state.
func (s *Subscription) Transition(to SubscriptionState) error {
	if !s.CanTransition(to) {
		return &InvalidTransitionError{Entity: "subscription", From: string(s.State), To: string(to)}
	}
	if to == SubscriptionCancelled {
		now := time.Now()
		s.CancelledAt = &now
	}
	s.State = to
	return nil
}
