package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createErrandsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_errands",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.Errand{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_errands_requester_id ON errands (requester_id)`,
				`CREATE INDEX IF NOT EXISTS idx_errands_helper_active ON errands (assigned_helper_id, status) WHERE assigned_helper_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.Errand{})
		},
	}
}
