package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
)

// Store interfaces consumed by the services. The repository package
// implements all of them; tests substitute fakes.

// LedgerStore persists ledger accounts and entries
type LedgerStore interface {
	GetSystemAccount(ctx context.Context, accountType models.AccountType) (*models.LedgerAccount, error)
	GetOrCreateUserAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*models.LedgerAccount, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	RecordEntries(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error)
	EntriesByIdempotencyKeys(ctx context.Context, keys []string) ([]models.LedgerEntry, error)
	EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
}

// OrderStore persists payment orders and fund holds
type OrderStore interface {
	Create(ctx context.Context, order *models.PaymentOrder) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.PaymentOrder, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.PaymentOrder, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.PaymentOrder, error)
	Update(ctx context.Context, order *models.PaymentOrder) error
	UpdateGuarded(ctx context.Context, order *models.PaymentOrder) error
	StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.PaymentOrder, error)
	CreateHold(ctx context.Context, hold *models.FundHold) error
	GetHoldByOrder(ctx context.Context, orderID uuid.UUID) (*models.FundHold, error)
	UpdateHold(ctx context.Context, hold *models.FundHold) error
	ExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.FundHold, error)
	CompletedSubscriptionOrders(ctx context.Context, since time.Time) ([]models.PaymentOrder, error)
}

// PayoutStore persists payouts
type PayoutStore interface {
	Create(ctx context.Context, payout *models.Payout) error
	GetByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	GetByTransferID(ctx context.Context, transferID string) (*models.Payout, error)
	Update(ctx context.Context, payout *models.Payout) error
	UpdateGuarded(ctx context.Context, payout *models.Payout) error
	PendingDue(ctx context.Context, now time.Time, limit int) ([]models.Payout, error)
	StuckProcessing(ctx context.Context, olderThan, lookback time.Time, limit int) ([]models.Payout, error)
	ActiveForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payout, error)
	HasAggregatedForPeriod(ctx context.Context, connectedAccountID uuid.UUID, period string) (bool, error)
}

// RefundStore persists refunds
type RefundStore interface {
	Create(ctx context.Context, refund *models.Refund) error
	GetByID(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	GetByProcessorID(ctx context.Context, processorRefundID string) (*models.Refund, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
	CompletedTotalForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	HasProcessingForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	Update(ctx context.Context, refund *models.Refund) error
	UpdateGuarded(ctx context.Context, refund *models.Refund) error
}

// SubscriptionStore persists subscriptions
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, subID uuid.UUID) (*models.Subscription, error)
	GetByProcessorID(ctx context.Context, processorSubID string) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error
	UpdateGuarded(ctx context.Context, sub *models.Subscription) error
}

// AccountStore persists connected accounts
type AccountStore interface {
	GetByID(ctx context.Context, accountID uuid.UUID) (*models.ConnectedAccount, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.ConnectedAccount, error)
	GetByProcessorID(ctx context.Context, processorAccountID string) (*models.ConnectedAccount, error)
	Update(ctx context.Context, account *models.ConnectedAccount) error
	UpdateGuarded(ctx context.Context, account *models.ConnectedAccount) error
}

// WebhookStore persists webhook events
type WebhookStore interface {
	GetOrCreate(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, bool, error)
	Update(ctx context.Context, event *models.WebhookEvent) error
	FailedRetryable(ctx context.Context, limit int) ([]models.WebhookEvent, error)
	StuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]models.WebhookEvent, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReconciliationStore persists runs and discrepancies
type ReconciliationStore interface {
	CreateRun(ctx context.Context, run *models.ReconciliationRun) error
	UpdateRun(ctx context.Context, run *models.ReconciliationRun) error
	CreateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) error
	UpdateDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) error
}

// Lock is a held distributed lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires distributed locks
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (Lock, error)
}

type redisLocker struct {
	manager *locks.Manager
}

// NewRedisLocker adapts the Redis lock manager to the Locker interface
func NewRedisLocker(manager *locks.Manager) Locker {
	return &redisLocker{manager: manager}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (Lock, error) {
	return l.manager.Acquire(ctx, key, ttl, timeout)
}

// EventPublisher emits domain events. Implementations may be nil-safe.
type EventPublisher interface {
	PaymentSettled(ctx context.Context, order *models.PaymentOrder)
	PaymentFailed(ctx context.Context, order *models.PaymentOrder)
	RefundCompleted(ctx context.Context, refund *models.Refund)
	PayoutPaid(ctx context.Context, payout *models.Payout)
	DiscrepancyFlagged(ctx context.Context, d *models.ReconciliationDiscrepancy)
}
