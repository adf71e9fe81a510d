package models

import (
	"time"

	"github.com/google/uuid"
)

// OnboardingStatus tracks processor account onboarding progress
type OnboardingStatus string

const (
	OnboardingNotStarted OnboardingStatus = "NOT_STARTED"
	OnboardingInProgress OnboardingStatus = "IN_PROGRESS"
	OnboardingComplete   OnboardingStatus = "COMPLETE"
	OnboardingRestricted OnboardingStatus = "RESTRICTED"
)

// ConnectedAccount maps a recipient to their processor account
type ConnectedAccount struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_connected_accounts_owner" json:"ownerId"`

	ProcessorAccountID string `gorm:"type:varchar(255);uniqueIndex:uix_connected_accounts_processor" json:"processorAccountId"`

	OnboardingStatus OnboardingStatus `gorm:"type:varchar(30);default:'NOT_STARTED'" json:"onboardingStatus"`
	PayoutsEnabled   bool             `gorm:"default:false" json:"payoutsEnabled"`
	ChargesEnabled   bool             `gorm:"default:false" json:"chargesEnabled"`
	Version          int              `gorm:"default:0" json:"version"`

	Metadata JSONB `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for ConnectedAccount
func (ConnectedAccount) TableName() string {
	return "connected_accounts"
}

// ReadyForPayouts reports whether transfers can be sent to this account.
func (a *ConnectedAccount) ReadyForPayouts() bool {
	return a.PayoutsEnabled && a.OnboardingStatus == OnboardingComplete
}
