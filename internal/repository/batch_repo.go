package repository

import (
	"context"
	"errors"
	"time"

	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.RegionalBatch) error
	GetByID(ctx context.Context, id string) (*domain.RegionalBatch, error)
	// Transition applies a conditional status move and reports whether this
	// caller observed it. Only the observer fires side effects.
	Transition(ctx context.Context, id string, from, to domain.BatchStatus) (bool, error)
	// AddQuantity atomically adds qty to an ACTIVE batch's current quantity.
	// Returns false if the batch was not ACTIVE at the time of the update.
	AddQuantity(ctx context.Context, id string, qty int) (bool, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.RegionalBatch, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.RegionalBatch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.RegionalBatch, error) {
	var batch domain.RegionalBatch
	err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *GormBatchRepo) Transition(ctx context.Context, id string, from, to domain.BatchStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.ErrInvalidTransition
	}

	result := r.db.WithContext(ctx).
		Model(&domain.RegionalBatch{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) AddQuantity(ctx context.Context, id string, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.RegionalBatch{}).
		Where("id = ? AND status = ?", id, domain.BatchActive).
		Update("current_quantity", gorm.Expr("current_quantity + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBatchRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.RegionalBatch, error) {
	var batches []domain.RegionalBatch
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline <= ?", domain.BatchActive, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
