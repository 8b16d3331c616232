package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createApplicationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_applications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.Application{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_applications_errand_status ON applications (errand_id, status)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_helper_live ON applications (errand_id, helper_id) WHERE status <> 'REJECTED'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.Application{})
		},
	}
}
