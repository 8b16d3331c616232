package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createSettlementAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000009_create_settlement_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.SettlementAttempt{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_task_id ON settlement_attempts (task_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.SettlementAttempt{})
		},
	}
}
