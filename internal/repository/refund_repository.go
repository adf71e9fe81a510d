package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// RefundRepository handles refund persistence
type RefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository
func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create creates a new refund
func (r *RefundRepository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

// GetByID gets a refund by id
func (r *RefundRepository) GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).First(&refund, "id = ?", refundID).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetByProcessorID gets a refund by processor refund id
func (r *RefundRepository) GetByProcessorID(ctx context.Context, processorRefundID string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("processor_refund_id = ?", processorRefundID).First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// ListByOrder lists all refunds for an order
func (r *RefundRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.WithContext(ctx).Where("payment_order_id = ?", orderID).Order("created_at ASC").Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// CompletedTotalForOrder sums completed refund amounts for an order
func (r *RefundRepository) CompletedTotalForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("payment_order_id = ? AND state = ?", orderID, models.RefundCompleted).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// HasProcessingForOrder reports whether a refund is already in flight
func (r *RefundRepository) HasProcessingForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("payment_order_id = ? AND state = ?", orderID, models.RefundProcessing).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update saves a refund without a version guard
func (r *RefundRepository) Update(ctx context.Context, refund *models.Refund) error {
	refund.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(refund).Error
}

// UpdateGuarded saves a refund only if the version still matches.
func (r *RefundRepository) UpdateGuarded(ctx context.Context, refund *models.Refund) error {
	current := refund.Version
	refund.Version = current + 1
	refund.UpdatedAt = time.Now()
	// Select("*") writes zero-value fields too, so a retry can clear a
	// previous failure reason.
	result := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND version = ?", refund.ID, current).
		Select("*").
		Updates(refund)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		refund.Version = current
		return &models.StaleObjectError{Entity: "refund", ID: refund.ID, Version: current}
	}
	return nil
}
