package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// SubscriptionRepository handles subscription persistence
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create creates a new subscription
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// GetByID gets a subscription by id
func (r *SubscriptionRepository) GetByID(ctx context.Context, subID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).First(&sub, "id = ?", subID).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByProcessorID gets a subscription by processor subscription id
func (r *SubscriptionRepository) GetByProcessorID(ctx context.Context, processorSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("processor_subscription_id = ?", processorSubID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Update saves a subscription without a version guard
func (r *SubscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(sub).Error
}

// UpdateGuarded saves a subscription only if the version still matches.
func (r *SubscriptionRepository) UpdateGuarded(ctx context.Context, sub *models.Subscription) error {
	current := sub.Version
	sub.Version = current + 1
	sub.UpdatedAt = time.Now()
	// Select("*") writes zero-value fields too, so a recovered
	// subscription sheds its stale past-due markers.
	result := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, current).
		Select("*").
		Updates(sub)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		sub.Version = current
		return &models.StaleObjectError{Entity: "subscription", ID: sub.ID, Version: current}
	}
	return nil
}
