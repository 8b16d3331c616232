package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createWithdrawalRequestsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000007_create_withdrawal_requests",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.WithdrawalRequest{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_withdrawals_vendor_status ON withdrawal_requests (vendor_id, status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.WithdrawalRequest{})
		},
	}
}
