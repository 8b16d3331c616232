package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createOrdersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_orders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.Order{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_orders_batch_status ON orders (batch_id, escrow_status)`,
				`CREATE INDEX IF NOT EXISTS idx_orders_buyer_id ON orders (buyer_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.Order{})
		},
	}
}
