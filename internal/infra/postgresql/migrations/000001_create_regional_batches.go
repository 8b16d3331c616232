package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createRegionalBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_regional_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.RegionalBatch{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_batches_vendor_id ON regional_batches (vendor_id)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_deadline_due ON regional_batches (deadline) WHERE status = 'ACTIVE'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.RegionalBatch{})
		},
	}
}
