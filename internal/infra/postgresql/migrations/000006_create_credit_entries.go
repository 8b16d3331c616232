package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createCreditEntriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_credit_entries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.CreditEntry{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_credits_user_available ON credit_entries (user_id, expires_at) WHERE used_at IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_credits_referral_id ON credit_entries (referral_id) WHERE referral_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.CreditEntry{})
		},
	}
}
