package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// WebhookRepository handles webhook event persistence
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// GetOrCreate returns the event for a processor event id, creating it when
// first seen. The second return is true when this call created the row.
func (r *WebhookRepository) GetOrCreate(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	var existing models.WebhookEvent
	err := r.db.WithContext(ctx).Where("processor_event_id = ?", event.ProcessorEventID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		// Concurrent delivery created it first
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if rerr := r.db.WithContext(ctx).Where("processor_event_id = ?", event.ProcessorEventID).First(&existing).Error; rerr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, err
	}
	return event, true, nil
}

// Update saves a webhook event
func (r *WebhookRepository) Update(ctx context.Context, event *models.WebhookEvent) error {
	event.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(event).Error
}

// FailedRetryable lists failed events still under the retry cap
func (r *WebhookRepository) FailedRetryable(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("state = ? AND retry_count < ?", models.WebhookFailed, models.MaxWebhookRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// StuckProcessing lists events marked PROCESSING longer than the threshold
func (r *WebhookRepository) StuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", models.WebhookProcessing, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteProcessedBefore removes processed events older than the cutoff.
// Returns the number of rows removed.
func (r *WebhookRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", models.WebhookProcessed, cutoff).
		Delete(&models.WebhookEvent{})
	return result.RowsAffected, result.Error
}
