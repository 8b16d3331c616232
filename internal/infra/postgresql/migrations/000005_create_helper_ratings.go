package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
)

func createHelperRatingsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_helper_ratings",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&domain.HelperRating{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_ratings_errand_rater ON helper_ratings (errand_id, rater_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&domain.HelperRating{})
		},
	}
}
