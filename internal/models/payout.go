package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutState represents the payout lifecycle state
type PayoutState string

const (
	PayoutPending    PayoutState = "PENDING"
	PayoutScheduled  PayoutState = "SCHEDULED"
	PayoutProcessing PayoutState = "PROCESSING"
	PayoutPaid       PayoutState = "PAID"
	PayoutFailed     PayoutState = "FAILED"
	PayoutCancelled  PayoutState = "CANCELLED"
)

var payoutTransitions = map[PayoutState][]PayoutState{
	PayoutPending:    {PayoutScheduled, PayoutProcessing, PayoutCancelled},
	PayoutScheduled:  {PayoutProcessing, PayoutCancelled},
	PayoutProcessing: {PayoutScheduled, PayoutPaid, PayoutFailed},
	PayoutFailed:     {PayoutPending},
	PayoutPaid:       {},
	PayoutCancelled:  {},
}

// Payout moves released funds to a recipient via a processor transfer.
// PaymentOrderID is nil for aggregated payouts.
type Payout struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentOrderID     *uuid.UUID `gorm:"type:uuid;index:idx_payouts_order" json:"paymentOrderId,omitempty"`
	ConnectedAccountID uuid.UUID  `gorm:"type:uuid;not null;index:idx_payouts_account" json:"connectedAccountId"`

	AmountCents int64  `gorm:"not null" json:"amountCents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`

	State   PayoutState `gorm:"type:varchar(30);not null;default:'PENDING';index:idx_payouts_state" json:"state"`
	Version int         `gorm:"default:0" json:"version"`

	// Attempt counter scopes processor idempotency keys
	Attempt int `gorm:"default:0" json:"attempt"`

	ProcessorTransferID string `gorm:"type:varchar(255);index:idx_payouts_transfer" json:"processorTransferId,omitempty"`

	ScheduledFor *time.Time `gorm:"index:idx_payouts_scheduled" json:"scheduledFor,omitempty"`
	PaidAt       *time.Time `json:"paidAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`

	FailureReason string `gorm:"type:text" json:"failureReason,omitempty"`
	Metadata      JSONB  `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_payouts_created" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	ConnectedAccount *ConnectedAccount `gorm:"foreignKey:ConnectedAccountID" json:"connectedAccount,omitempty"`
}

// TableName specifies the table name for Payout
func (Payout) TableName() string {
	return "payouts"
}

// CanTransition reports whether the transition table allows the move.
func (p *Payout) CanTransition(to PayoutState) bool {
	for _, s := range payoutTransitions[p.State] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the payout to the target state, stamping timestamps.
func (p *Payout) Transition(to PayoutState) error {
	if !p.CanTransition(to) {
		return &InvalidTransitionError{Entity: "payout", From: string(p.State), To: string(to)}
	}
	now := time.Now()
	switch to {
	case PayoutPaid:
		p.PaidAt = &now
	case PayoutFailed:
		p.FailedAt = &now
	case PayoutCancelled:
		p.CancelledAt = &now
	}
	p.State = to
	return nil
}
