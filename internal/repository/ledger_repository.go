package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"payment-engine/internal/models"
)

// LedgerRepository handles ledger account and entry persistence
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetSystemAccount gets the singleton platform account of the given type
func (r *LedgerRepository) GetSystemAccount(ctx context.Context, accountType models.AccountType) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).Where("account_type = ? AND owner_id IS NULL", accountType).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetOrCreateUserAccount gets or creates a USER_BALANCE account for an owner
func (r *LedgerRepository) GetOrCreateUserAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).Where("account_type = ? AND owner_id = ?", models.AccountUserBalance, ownerID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = models.LedgerAccount{
		AccountType: models.AccountUserBalance,
		OwnerID:     &ownerID,
		Currency:    currency,
	}
	if err := r.db.WithContext(ctx).Create(&account).Error; err != nil {
		// Concurrent creation: re-read
		var existing models.LedgerAccount
		if rerr := r.db.WithContext(ctx).Where("account_type = ? AND owner_id = ?", models.AccountUserBalance, ownerID).First(&existing).Error; rerr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &account, nil
}

// Balance derives an account balance as credits minus debits
func (r *LedgerRepository) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return balanceTx(r.db.WithContext(ctx), accountID)
}

func balanceTx(tx *gorm.DB, accountID uuid.UUID) (int64, error) {
	var credits, debits int64
	err := tx.Model(&models.LedgerEntry{}).
		Where("credit_account_id = ?", accountID).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&credits).Error
	if err != nil {
		return 0, err
	}
	err = tx.Model(&models.LedgerEntry{}).
		Where("debit_account_id = ?", accountID).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&debits).Error
	if err != nil {
		return 0, err
	}
	return credits - debits, nil
}

// EntriesByIdempotencyKeys returns existing entries for any of the keys
func (r *LedgerRepository) EntriesByIdempotencyKeys(ctx context.Context, keys []string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).Where("idempotency_key IN ?", keys).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// EntriesForOrder lists all entries attributed to a payment order
func (r *LedgerRepository) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).Where("payment_order_id = ?", orderID).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RecordEntries writes a batch of entries atomically.
//
// If every key in the batch already exists the stored entries are returned
// unchanged. Account rows are locked in id order to keep concurrent batches
// deadlock-free, then each debit is checked against the derived balance.
// A unique violation racing a concurrent writer surfaces as IntegrityError
// so the caller can re-read by key.
func (r *LedgerRepository) RecordEntries(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.IdempotencyKey
	}

	var result []models.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.LedgerEntry
		if err := tx.Where("idempotency_key IN ?", keys).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) == len(entries) {
			result = existing
			return nil
		}
		if len(existing) > 0 {
			// Partial batch from an earlier crash. Only write the
			// missing entries.
			seen := make(map[string]bool, len(existing))
			for _, e := range existing {
				seen[e.IdempotencyKey] = true
			}
			missing := entries[:0:0]
			for _, e := range entries {
				if !seen[e.IdempotencyKey] {
					missing = append(missing, e)
				}
			}
			entries = missing
		}

		accountIDs := collectAccountIDs(entries)
		var accounts []models.LedgerAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", accountIDs).
			Order("id ASC").
			Find(&accounts).Error; err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*models.LedgerAccount, len(accounts))
		for i := range accounts {
			byID[accounts[i].ID] = &accounts[i]
		}

		// Net debit per account across the whole batch
		netDebit := make(map[uuid.UUID]int64)
		for _, e := range entries {
			netDebit[e.DebitAccountID] += e.AmountCents
			netDebit[e.CreditAccountID] -= e.AmountCents
		}
		for accountID, debit := range netDebit {
			if debit <= 0 {
				continue
			}
			account, ok := byID[accountID]
			if !ok {
				return gorm.ErrRecordNotFound
			}
			if account.AllowNegative {
				continue
			}
			balance, err := balanceTx(tx, accountID)
			if err != nil {
				return err
			}
			if balance-debit < 0 {
				return &models.InsufficientFundsError{
					AccountID: accountID,
					Account:   string(account.AccountType),
					Balance:   balance,
					Debit:     debit,
				}
			}
		}

		if err := tx.Create(&entries).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &models.IntegrityError{Key: keys[0], Err: err}
			}
			return err
		}
		result = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func collectAccountIDs(entries []models.LedgerEntry) []uuid.UUID {
	set := make(map[uuid.UUID]bool)
	for _, e := range entries {
		set[e.DebitAccountID] = true
		set[e.CreditAccountID] = true
	}
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
