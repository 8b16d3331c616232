package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfirmResult reports the outcome of a completion confirmation.
type ConfirmResult struct {
	Errand *domain.Errand
	// Completed is true only for the call that observed the transition into
	// COMPLETED; repeat confirmations by the same party return false.
	Completed bool
}

type ErrandRepository interface {
	Create(ctx context.Context, e *domain.Errand) error
	GetByID(ctx context.Context, id string) (*domain.Errand, error)
	// CountActiveByHelper counts errands in ASSIGNED or AWAITING_CONFIRMATION
	// assigned to the helper.
	CountActiveByHelper(ctx context.Context, helperID string) (int64, error)
	// Accept applies the four acceptance writes as one atomic unit: errand
	// OPEN -> ASSIGNED with the helper set, the application -> ACCEPTED, and
	// every sibling application -> REJECTED.
	Accept(ctx context.Context, errandID, applicationID, helperID string) error
	// Confirm sets the calling party's confirmation flag under a row lock and
	// moves the errand to AWAITING_CONFIRMATION or COMPLETED.
	Confirm(ctx context.Context, errandID string, isRequester bool) (*ConfirmResult, error)
	Cancel(ctx context.Context, errandID string) (bool, error)
	// MarkPaymentReleased flips the payment guard at most once. A false return
	// means another caller already released payment for this errand.
	MarkPaymentReleased(ctx context.Context, errandID string) (bool, error)
	// RejectStrayPending rejects PENDING applications left behind by a
	// partially applied acceptance; the reconciliation path for stores that
	// could not apply all four writes atomically.
	RejectStrayPending(ctx context.Context, errandID string) (int64, error)
}

type ApplicationRepository interface {
	Create(ctx context.Context, a *domain.Application) error
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	ListByErrand(ctx context.Context, errandID string) ([]domain.Application, error)
	// HasNonRejected reports whether the helper holds a PENDING or ACCEPTED
	// application for the errand.
	HasNonRejected(ctx context.Context, errandID, helperID string) (bool, error)
}

type RatingRepository interface {
	// Upsert stores one rating per (errand, rater) pair; a second call
	// updates the existing row.
	Upsert(ctx context.Context, r *domain.HelperRating) error
	GetByErrandAndRater(ctx context.Context, errandID, raterID string) (*domain.HelperRating, error)
}

type GormErrandRepo struct {
	db *gorm.DB
}

func NewGormErrandRepo(db *gorm.DB) *GormErrandRepo {
	return &GormErrandRepo{db: db}
}

func (r *GormErrandRepo) Create(ctx context.Context, e *domain.Errand) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *GormErrandRepo) GetByID(ctx context.Context, id string) (*domain.Errand, error) {
	var errand domain.Errand
	err := r.db.WithContext(ctx).First(&errand, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &errand, nil
}

func (r *GormErrandRepo) CountActiveByHelper(ctx context.Context, helperID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Errand{}).
		Where("assigned_helper_id = ? AND status IN ?", helperID, []domain.ErrandStatus{
			domain.ErrandAssigned,
			domain.ErrandAwaitingConfirmation,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormErrandRepo) Accept(ctx context.Context, errandID, applicationID, helperID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Errand{}).
			Where("id = ? AND status = ? AND assigned_helper_id IS NULL", errandID, domain.ErrandOpen).
			Updates(map[string]any{
				"status":             domain.ErrandAssigned,
				"assigned_helper_id": helperID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: errand is not open", domain.ErrInvalidTransition)
		}

		result = tx.Model(&domain.Application{}).
			Where("id = ? AND errand_id = ? AND status = ?", applicationID, errandID, domain.ApplicationPending).
			Update("status", domain.ApplicationAccepted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: application is not pending", domain.ErrConflict)
		}

		return tx.Model(&domain.Application{}).
			Where("errand_id = ? AND id <> ? AND status = ?", errandID, applicationID, domain.ApplicationPending).
			Update("status", domain.ApplicationRejected).Error
	})
}

// applyConfirmation records the calling party's confirmation on errand.
// completed reports the transition into COMPLETED; changed is false for
// repeat confirmations, which are no-ops both before and after completion.
// Completed stays false on the post-completion repeat so the caller does
// not re-trigger payment release.
func applyConfirmation(errand *domain.Errand, isRequester bool) (completed, changed bool, err error) {
	switch errand.Status {
	case domain.ErrandAssigned, domain.ErrandAwaitingConfirmation:
	case domain.ErrandCompleted:
		return false, false, nil
	default:
		return false, false, fmt.Errorf("%w: errand status is %s", domain.ErrInvalidTransition, errand.Status)
	}

	if isRequester && errand.RequesterConfirmed || !isRequester && errand.HelperConfirmed {
		return false, false, nil
	}

	if isRequester {
		errand.RequesterConfirmed = true
	} else {
		errand.HelperConfirmed = true
	}
	if errand.RequesterConfirmed && errand.HelperConfirmed {
		errand.Status = domain.ErrandCompleted
		return true, true, nil
	}
	errand.Status = domain.ErrandAwaitingConfirmation
	return false, true, nil
}

func (r *GormErrandRepo) Confirm(ctx context.Context, errandID string, isRequester bool) (*ConfirmResult, error) {
	var out ConfirmResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errand domain.Errand
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&errand, "id = ?", errandID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		completed, changed, err := applyConfirmation(&errand, isRequester)
		if err != nil {
			return err
		}
		out.Completed = completed
		if !changed {
			out.Errand = &errand
			return nil
		}
		errand.UpdatedAt = time.Now().UTC()

		if err := tx.Model(&domain.Errand{}).
			Where("id = ?", errand.ID).
			Updates(map[string]any{
				"requester_confirmed": errand.RequesterConfirmed,
				"helper_confirmed":    errand.HelperConfirmed,
				"status":              errand.Status,
				"updated_at":          errand.UpdatedAt,
			}).Error; err != nil {
			return err
		}

		out.Errand = &errand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormErrandRepo) Cancel(ctx context.Context, errandID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Errand{}).
		Where("id = ? AND status IN ?", errandID, []domain.ErrandStatus{
			domain.ErrandOpen,
			domain.ErrandAssigned,
			domain.ErrandAwaitingConfirmation,
		}).
		Update("status", domain.ErrandCancelled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormErrandRepo) MarkPaymentReleased(ctx context.Context, errandID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Errand{}).
		Where("id = ? AND status = ? AND payment_released = ?", errandID, domain.ErrandCompleted, false).
		Update("payment_released", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormErrandRepo) RejectStrayPending(ctx context.Context, errandID string) (int64, error) {
	var accepted int64
	err := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("errand_id = ? AND status = ?", errandID, domain.ApplicationAccepted).
		Count(&accepted).Error
	if err != nil {
		return 0, err
	}
	if accepted == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("errand_id = ? AND status = ?", errandID, domain.ApplicationPending).
		Update("status", domain.ApplicationRejected)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

type GormApplicationRepo struct {
	db *gorm.DB
}

func NewGormApplicationRepo(db *gorm.DB) *GormApplicationRepo {
	return &GormApplicationRepo{db: db}
}

func (r *GormApplicationRepo) Create(ctx context.Context, a *domain.Application) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormApplicationRepo) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).First(&app, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *GormApplicationRepo) ListByErrand(ctx context.Context, errandID string) ([]domain.Application, error) {
	var apps []domain.Application
	err := r.db.WithContext(ctx).
		Where("errand_id = ?", errandID).
		Order("created_at ASC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *GormApplicationRepo) HasNonRejected(ctx context.Context, errandID, helperID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("errand_id = ? AND helper_id = ? AND status <> ?", errandID, helperID, domain.ApplicationRejected).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type GormRatingRepo struct {
	db *gorm.DB
}

func NewGormRatingRepo(db *gorm.DB) *GormRatingRepo {
	return &GormRatingRepo{db: db}
}

func (r *GormRatingRepo) Upsert(ctx context.Context, rating *domain.HelperRating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "errand_id"}, {Name: "rater_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rating", "comment", "updated_at",
			}),
		}).
		Create(rating).Error
}

func (r *GormRatingRepo) GetByErrandAndRater(ctx context.Context, errandID, raterID string) (*domain.HelperRating, error) {
	var rating domain.HelperRating
	err := r.db.WithContext(ctx).
		Where("errand_id = ? AND rater_id = ?", errandID, raterID).
		First(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rating, nil
}
