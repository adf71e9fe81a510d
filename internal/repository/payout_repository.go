package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// PayoutRepository handles payout persistence
type PayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create creates a new payout
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// GetByID gets a payout with its connected account preloaded
func (r *PayoutRepository) GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Preload("ConnectedAccount").First(&payout, "id = ?", payoutID).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// GetByTransferID gets a payout by processor transfer id
func (r *PayoutRepository) GetByTransferID(ctx context.Context, transferID string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("processor_transfer_id = ?", transferID).First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// Update saves a payout without a version guard
func (r *PayoutRepository) Update(ctx context.Context, payout *models.Payout) error {
	payout.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(payout).Error
}

// UpdateGuarded saves a payout only if the version still matches.
func (r *PayoutRepository) UpdateGuarded(ctx context.Context, payout *models.Payout) error {
	current := payout.Version
	payout.Version = current + 1
	payout.UpdatedAt = time.Now()
	// Select("*") writes zero-value fields too, so a retry can clear a
	// previous FailureReason.
	result := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND version = ?", payout.ID, current).
		Select("*").
		Updates(payout)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		payout.Version = current
		return &models.StaleObjectError{Entity: "payout", ID: payout.ID, Version: current}
	}
	return nil
}

// PendingDue lists payouts ready for execution: PENDING with no schedule
// or a due one, plus SCHEDULED payouts whose time has come.
func (r *PayoutRepository) PendingDue(ctx context.Context, now time.Time, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("(state = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)) OR (state = ? AND scheduled_for <= ?)",
			models.PayoutPending, now, models.PayoutScheduled, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// StuckProcessing lists payouts sitting in PROCESSING longer than the
// threshold within the lookback window.
func (r *PayoutRepository) StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ? AND updated_at > ?", []models.PayoutState{models.PayoutProcessing, models.PayoutScheduled}, olderThan, lookback).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ActiveForOrder lists payouts for an order that are not in a terminal
// failed or cancelled state.
func (r *PayoutRepository) ActiveForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("payment_order_id = ? AND state NOT IN ?", orderID,
			[]models.PayoutState{models.PayoutFailed, models.PayoutCancelled}).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// HasAggregatedForPeriod reports whether an aggregated payout already
// exists for the account and billing period.
func (r *PayoutRepository) HasAggregatedForPeriod(ctx context.Context, connectedAccountID uuid.UUID, period string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("payment_order_id IS NULL AND connected_account_id = ? AND metadata->>'period' = ?", connectedAccountID, period).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
