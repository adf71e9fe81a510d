package models

import (
	"time"

	"github.com/google/uuid"
)

// RefundState represents the refund lifecycle state
type RefundState string

const (
	RefundPending    RefundState = "PENDING"
	RefundProcessing RefundState = "PROCESSING"
	RefundCompleted  RefundState = "COMPLETED"
	RefundFailed     RefundState = "FAILED"
)

var refundTransitions = map[RefundState][]RefundState{
	RefundPending:    {RefundProcessing},
	RefundProcessing: {RefundProcessing, RefundCompleted, RefundFailed},
	RefundCompleted:  {},
	RefundFailed:     {RefundProcessing},
}

// Refund returns captured funds to the payer
type Refund struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentOrderID uuid.UUID `gorm:"type:uuid;not null;index:idx_refunds_order" json:"paymentOrderId"`

	AmountCents int64  `gorm:"not null" json:"amountCents"`
	Currency    string `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Reason      string `gorm:"type:varchar(255)" json:"reason,omitempty"`

	State   RefundState `gorm:"type:varchar(30);not null;default:'PENDING';index:idx_refunds_state" json:"state"`
	Version int         `gorm:"default:0" json:"version"`
	Attempt int         `gorm:"default:0" json:"attempt"`

	// Whether the platform fee share was included in the refund. Only
	// possible while the order held funds in escrow.
	FeeRefunded bool `gorm:"default:false" json:"feeRefunded"`

	ProcessorRefundID string `gorm:"type:varchar(255);index:idx_refunds_processor" json:"processorRefundId,omitempty"`

	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	FailureReason string     `gorm:"type:text" json:"failureReason,omitempty"`
	Metadata      JSONB      `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	PaymentOrder *PaymentOrder `gorm:"foreignKey:PaymentOrderID" json:"paymentOrder,omitempty"`
}

// TableName specifies the table name for Refund
func (Refund) TableName() string {
	return "refunds"
}

// CanTransition reports whether the transition table allows the move.
func (r *Refund) CanTransition(to RefundState) bool {
	for _, s := range refundTransitions[r.State] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the refund to the target state, stamping timestamps.
func (r *Refund) Transition(to RefundState) error {
	if !r.CanTransition(to) {
		return &InvalidTransitionError{Entity: "refund", From: string(r.State), To: string(to)}
	}
	now := time.Now()
	switch to {
	case RefundCompleted:
		r.CompletedAt = &now
	case RefundFailed:
		r.FailedAt = &now
	}
	r.State = to
	return nil
}
