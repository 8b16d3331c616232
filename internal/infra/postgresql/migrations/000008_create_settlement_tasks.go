package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createSettlementTasksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000008_create_settlement_tasks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.SettlementTask{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_tasks_order_action_open ON settlement_tasks (order_id, action) WHERE status IN ('PENDING', 'IN_FLIGHT')`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_retry ON settlement_tasks (next_retry_at) WHERE status = 'PENDING'`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_batch_id ON settlement_tasks (batch_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.SettlementTask{})
		},
	}
}
