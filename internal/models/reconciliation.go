package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscrepancyType classifies a mismatch between local and processor state
type DiscrepancyType string

const (
	DiscrepancyStripeSucceededLocalProcessing DiscrepancyType = "STRIPE_SUCCEEDED_LOCAL_PROCESSING"
	DiscrepancyStripeSucceededLocalPending    DiscrepancyType = "STRIPE_SUCCEEDED_LOCAL_PENDING"
	DiscrepancyStripeFailedLocalProcessing    DiscrepancyType = "STRIPE_FAILED_LOCAL_PROCESSING"
	DiscrepancyStripeCanceledLocalActive      DiscrepancyType = "STRIPE_CANCELED_LOCAL_ACTIVE"
	DiscrepancyTransferExistsNoLocalID        DiscrepancyType = "STRIPE_TRANSFER_EXISTS_LOCAL_PROCESSING_NO_ID"
	DiscrepancyTransferPaidLocalProcessing    DiscrepancyType = "STRIPE_TRANSFER_PAID_LOCAL_PROCESSING"
	DiscrepancyTransferPaidLocalScheduled     DiscrepancyType = "STRIPE_TRANSFER_PAID_LOCAL_SCHEDULED"
	DiscrepancyTransferFailedLocalProcessing  DiscrepancyType = "STRIPE_TRANSFER_FAILED_LOCAL_PROCESSING"
	DiscrepancyPaymentStuckInProcessing       DiscrepancyType = "PAYMENT_STUCK_IN_PROCESSING"
	DiscrepancyPayoutStuckInProcessing        DiscrepancyType = "PAYOUT_STUCK_IN_PROCESSING"
)

// DiscrepancyResolution records what reconciliation did about a finding
type DiscrepancyResolution string

const (
	ResolutionAutoHealed       DiscrepancyResolution = "AUTO_HEALED"
	ResolutionFlaggedForReview DiscrepancyResolution = "FLAGGED_FOR_REVIEW"
	ResolutionFailedToHeal     DiscrepancyResolution = "FAILED_TO_HEAL"
)

// ReconciliationRunStatus tracks a run's outcome
type ReconciliationRunStatus string

const (
	RunInProgress ReconciliationRunStatus = "IN_PROGRESS"
	RunCompleted  ReconciliationRunStatus = "COMPLETED"
	RunFailed     ReconciliationRunStatus = "FAILED"
)

// ReconciliationRun is one sweep over recent entities
type ReconciliationRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	StartedAt   time.Time  `gorm:"not null" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	LookbackHours       int `gorm:"default:24" json:"lookbackHours"`
	StuckThresholdHours int `gorm:"default:2" json:"stuckThresholdHours"`

	PaymentOrdersChecked int `gorm:"default:0" json:"paymentOrdersChecked"`
	PayoutsChecked       int `gorm:"default:0" json:"payoutsChecked"`
	DiscrepanciesFound   int `gorm:"default:0" json:"discrepanciesFound"`
	AutoHealed           int `gorm:"default:0" json:"autoHealed"`
	FlaggedForReview     int `gorm:"default:0" json:"flaggedForReview"`
	FailedToHeal         int `gorm:"default:0" json:"failedToHeal"`

	Status       ReconciliationRunStatus `gorm:"type:varchar(30);not null;default:'IN_PROGRESS'" json:"status"`
	ErrorMessage string                  `gorm:"type:text" json:"errorMessage,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for ReconciliationRun
func (ReconciliationRun) TableName() string {
	return "reconciliation_runs"
}

// ReconciliationDiscrepancy is one finding within a run
type ReconciliationDiscrepancy struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_discrepancies_run" json:"runId"`

	EntityType  string    `gorm:"type:varchar(50);not null" json:"entityType"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index:idx_discrepancies_entity" json:"entityId"`
	ProcessorID string    `gorm:"type:varchar(255)" json:"processorId,omitempty"`

	DiscrepancyType DiscrepancyType `gorm:"type:varchar(80);not null" json:"discrepancyType"`
	LocalState      string          `gorm:"type:varchar(30)" json:"localState"`
	ProcessorState  string          `gorm:"type:varchar(50)" json:"processorState"`
	Details         JSONB           `gorm:"type:jsonb" json:"details,omitempty"`

	Resolution   DiscrepancyResolution `gorm:"type:varchar(30)" json:"resolution,omitempty"`
	ActionTaken  string                `gorm:"type:text" json:"actionTaken,omitempty"`
	ErrorMessage string                `gorm:"type:text" json:"errorMessage,omitempty"`

	Reviewed    bool       `gorm:"default:false;index:idx_discrepancies_reviewed" json:"reviewed"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy  *uuid.UUID `gorm:"type:uuid" json:"reviewedBy,omitempty"`
	ReviewNotes string     `gorm:"type:text" json:"reviewNotes,omitempty"`

	LedgerEntryID *uuid.UUID `gorm:"type:uuid" json:"ledgerEntryId,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`

	Run *ReconciliationRun `gorm:"foreignKey:RunID" json:"run,omitempty"`
}

// TableName specifies the table name for ReconciliationDiscrepancy
func (ReconciliationDiscrepancy) TableName() string {
	return "reconciliation_discrepancies"
}
