package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountType represents a ledger account class
type AccountType string

const (
	AccountExternalStripe  AccountType = "EXTERNAL_STRIPE"
	AccountPlatformEscrow  AccountType = "PLATFORM_ESCROW"
	AccountPlatformRevenue AccountType = "PLATFORM_REVENUE"
	AccountUserBalance     AccountType = "USER_BALANCE"
)

// EntryType represents the business meaning of a ledger entry
type EntryType string

const (
	EntryPaymentReceived EntryType = "PAYMENT_RECEIVED"
	EntryPaymentReleased EntryType = "PAYMENT_RELEASED"
	EntryFeeCollected    EntryType = "FEE_COLLECTED"
	EntryPayout          EntryType = "PAYOUT"
	EntryRefund          EntryType = "REFUND"
	EntryAdjustment      EntryType = "ADJUSTMENT"
	EntryTransfer        EntryType = "TRANSFER"
)

// LedgerAccount is one side of the double-entry ledger. Balance is always
// derived from entries, never stored.
type LedgerAccount struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AccountType   AccountType `gorm:"type:varchar(50);not null;index:idx_ledger_accounts_type" json:"accountType"`
	OwnerID       *uuid.UUID  `gorm:"type:uuid;index:idx_ledger_accounts_owner" json:"ownerId,omitempty"`
	Currency      string      `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	AllowNegative bool        `gorm:"default:false" json:"allowNegative"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for LedgerAccount
func (LedgerAccount) TableName() string {
	return "ledger_accounts"
}

// LedgerEntry is a single movement between two accounts. Entries are
// immutable once written.
type LedgerEntry struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DebitAccountID  uuid.UUID `gorm:"type:uuid;not null;index:idx_ledger_entries_debit" json:"debitAccountId"`
	CreditAccountID uuid.UUID `gorm:"type:uuid;not null;index:idx_ledger_entries_credit" json:"creditAccountId"`
	AmountCents     int64     `gorm:"not null" json:"amountCents"`
	Currency        string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	EntryType       EntryType `gorm:"type:varchar(50);not null;index:idx_ledger_entries_type" json:"entryType"`

	// One ledger effect per business operation. Unique across the table.
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex:uix_ledger_entries_idem" json:"idempotencyKey"`

	PaymentOrderID *uuid.UUID `gorm:"type:uuid;index:idx_ledger_entries_order" json:"paymentOrderId,omitempty"`
	Description    string     `gorm:"type:text" json:"description,omitempty"`
	Metadata       JSONB      `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_ledger_entries_created" json:"createdAt"`

	DebitAccount  *LedgerAccount `gorm:"foreignKey:DebitAccountID" json:"debitAccount,omitempty"`
	CreditAccount *LedgerAccount `gorm:"foreignKey:CreditAccountID" json:"creditAccount,omitempty"`
}

// TableName specifies the table name for LedgerEntry
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
