package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// OrderRepository handles payment order and fund hold persistence
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create creates a new payment order
func (r *OrderRepository) Create(ctx context.Context, order *models.PaymentOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID gets a payment order with its hold and refunds preloaded
func (r *OrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Preload("Hold").Preload("Refunds").Preload("Payouts").First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByIntentID gets a payment order by processor intent id
func (r *OrderRepository) GetByIntentID(ctx context.Context, intentID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Preload("Hold").Where("processor_intent_id = ?", intentID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetByInvoiceID gets the child order created for a subscription invoice
func (r *OrderRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Where("processor_invoice_id = ?", invoiceID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update saves a payment order without a version guard
func (r *OrderRepository) Update(ctx context.Context, order *models.PaymentOrder) error {
	order.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(order).Error
}

// UpdateGuarded saves a payment order only if the version column still
// matches, then bumps it. Lost races surface as StaleObjectError.
func (r *OrderRepository) UpdateGuarded(ctx context.Context, order *models.PaymentOrder) error {
	current := order.Version
	order.Version = current + 1
	order.UpdatedAt = time.Now()
	// Select("*") writes zero-value fields too, so a retried order can
	// clear a previous failure code.
	result := r.db.WithContext(ctx).Model(&models.PaymentOrder{}).
		Where("id = ? AND version = ?", order.ID, current).
		Select("*").
		Updates(order)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		order.Version = current
		return &models.StaleObjectError{Entity: "payment_order", ID: order.ID, Version: current}
	}
	return nil
}

// StuckProcessing lists orders sitting in PROCESSING longer than the
// threshold, bounded by the lookback window.
func (r *OrderRepository) StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ? AND updated_at > ?", []models.OrderState{models.OrderPending, models.OrderProcessing}, olderThan, lookback).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateHold creates a fund hold for an escrowed order
func (r *OrderRepository) CreateHold(ctx context.Context, hold *models.FundHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

// GetHoldByOrder gets the fund hold belonging to an order
func (r *OrderRepository) GetHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.FundHold, error) {
	var hold models.FundHold
	err := r.db.WithContext(ctx).Where("payment_order_id = ?", orderID).First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// UpdateHold saves a fund hold
func (r *OrderRepository) UpdateHold(ctx context.Context, hold *models.FundHold) error {
	hold.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(hold).Error
}

// ExpiredHolds lists unreleased holds past their expiry whose order is
// still HELD.
func (r *OrderRepository) ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.FundHold, error) {
	var holds []models.FundHold
	err := r.db.WithContext(ctx).
		Joins("JOIN payment_orders ON payment_orders.id = fund_holds.payment_order_id").
		Where("fund_holds.released = false AND fund_holds.expires_at < ? AND payment_orders.state = ?", now, models.OrderHeld).
		Order("fund_holds.expires_at ASC").
		Limit(limit).
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// CompletedSubscriptionOrders lists settled subscription child orders for
// aggregation, grouped by recipient in the service layer.
func (r *OrderRepository) CompletedSubscriptionOrders(ctx context.Context, since time.Time) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("flow = ? AND state = ? AND subscription_id IS NOT NULL AND settled_at >= ?",
			models.FlowSubscription, models.OrderSettled, since).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
