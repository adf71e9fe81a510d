package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// AccountRepository handles connected account persistence
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new connected account repository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new connected account
func (r *AccountRepository) Create(ctx context.Context, account *models.ConnectedAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByID gets a connected account by id
func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (*models.ConnectedAccount, error) {
	var account models.ConnectedAccount
	err := r.db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByOwner gets the connected account for a recipient
func (r *AccountRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.ConnectedAccount, error) {
	var account models.ConnectedAccount
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByProcessorID gets a connected account by processor account id
func (r *AccountRepository) GetByProcessorID(ctx context.Context, processorAccountID string) (*models.ConnectedAccount, error) {
	var account models.ConnectedAccount
	err := r.db.WithContext(ctx).Where("processor_account_id = ?", processorAccountID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Update saves a connected account
func (r *AccountRepository) Update(ctx context.Context, account *models.ConnectedAccount) error {
	account.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(account).Error
}

// UpdateGuarded saves a connected account only if the version matches.
func (r *AccountRepository) UpdateGuarded(ctx context.Context, account *models.ConnectedAccount) error {
	current := account.Version
	account.Version = current + 1
	account.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(&models.ConnectedAccount{}).
		Where("id = ? AND version = ?", account.ID, current).
		Updates(account)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		account.Version = current
		return &models.StaleObjectError{Entity: "connected_account", ID: account.ID, Version: current}
	}
	return nil
}
