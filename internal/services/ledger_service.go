package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/models"
)

// Idempotency key builders. One key per ledger effect of a business
// operation, so replays collapse onto the stored entries.
func PaymentReceivedKey(orderID uuid.UUID) string { return fmt.Sprintf("payment:%s:received", orderID) }
func PaymentFeeKey(orderID uuid.UUID) string      { return fmt.Sprintf("payment:%s:fee", orderID) }
func PaymentReleaseKey(orderID uuid.UUID) string  { return fmt.Sprintf("payment:%s:release", orderID) }
func EscrowCaptureKey(orderID uuid.UUID) string   { return fmt.Sprintf("escrow:%s:capture", orderID) }
func EscrowReleaseRecipientKey(orderID uuid.UUID) string {
	return fmt.Sprintf("escrow:%s:release:recipient", orderID)
}
func EscrowReleaseFeeKey(orderID uuid.UUID) string {
	return fmt.Sprintf("escrow:%s:release:fee", orderID)
}
func RefundPayoutCancelKey(refundID, payoutID uuid.UUID) string {
	return fmt.Sprintf("refund:%s:payout_cancel:%s", refundID, payoutID)
}
func RefundReversalKey(refundID uuid.UUID) string {
	return fmt.Sprintf("refund:%s:reversal", refundID)
}
func PayoutCompletionKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("payout:%s:completion", payoutID)
}
func SubscriptionReceivedKey(invoiceID string) string {
	return fmt.Sprintf("subscription:%s:received", invoiceID)
}
func SubscriptionFeeKey(invoiceID string) string {
	return fmt.Sprintf("subscription:%s:fee", invoiceID)
}
func SubscriptionReleaseKey(invoiceID string) string {
	return fmt.Sprintf("subscription:%s:release", invoiceID)
}

// LedgerService is the double-entry posting surface. All money movement in
// the engine goes through Post.
type LedgerService struct {
	store  LedgerStore
	logger *logrus.Entry
}

// NewLedgerService creates a new ledger service
func NewLedgerService(store LedgerStore, logger *logrus.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: logger.WithField("component", "ledger"),
	}
}

// SystemAccount resolves a platform account by type
func (s *LedgerService) SystemAccount(ctx context.Context, accountType models.AccountType) (*models.LedgerAccount, error) {
	return s.store.GetSystemAccount(ctx, accountType)
}

// UserAccount resolves (or creates) a user's balance account
func (s *LedgerService) UserAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*models.LedgerAccount, error) {
	return s.store.GetOrCreateUserAccount(ctx, ownerID, currency)
}

// Balance derives an account balance
func (s *LedgerService) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, accountID)
}

// EntriesForOrder lists an order's ledger trail
func (s *LedgerService) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.store.EntriesForOrder(ctx, orderID)
}

// Post writes a batch of entries atomically. A concurrent writer racing the
// same keys surfaces as IntegrityError from the store; in that case the
// other writer won, so the stored entries are re-read and returned.
func (s *LedgerService) Post(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	for _, e := range entries {
		if e.AmountCents <= 0 {
			return nil, fmt.Errorf("ledger entry amount must be positive, got %d for %s", e.AmountCents, e.IdempotencyKey)
		}
		if e.IdempotencyKey == "" {
			return nil, fmt.Errorf("ledger entry requires an idempotency key")
		}
	}

	recorded, err := s.store.RecordEntries(ctx, entries)
	if err == nil {
		return recorded, nil
	}

	var integrity *models.IntegrityError
	if errors.As(err, &integrity) {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.IdempotencyKey
		}
		s.logger.WithField("key", integrity.Key).Info("ledger write raced a concurrent batch, re-reading")
		return s.store.EntriesByIdempotencyKeys(ctx, keys)
	}
	return nil, err
}
