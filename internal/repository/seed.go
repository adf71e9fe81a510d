package repository

import (
	"log"

	"gorm.io/gorm"
	"payment-engine/internal/models"
)

// SeedPlatformAccounts creates the system ledger accounts the engine posts
// against. Idempotent - safe to run on every boot.
func SeedPlatformAccounts(db *gorm.DB, currency string) error {
	accounts := []models.LedgerAccount{
		// The only account allowed to go negative: it mirrors money
		// sitting at the processor, outside the platform.
		{AccountType: models.AccountExternalStripe, Currency: currency, AllowNegative: true},
		{AccountType: models.AccountPlatformEscrow, Currency: currency},
		{AccountType: models.AccountPlatformRevenue, Currency: currency},
	}

	for i := range accounts {
		var existing models.LedgerAccount
		err := db.Where("account_type = ? AND owner_id IS NULL", accounts[i].AccountType).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := db.Create(&accounts[i]).Error; err != nil {
			log.Printf("Warning: failed to seed account %s: %v", accounts[i].AccountType, err)
			return err
		}
	}

	log.Println("Seeded platform ledger accounts")
	return nil
}
