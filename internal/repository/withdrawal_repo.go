package repository

import (
	"context"
	"errors"

	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, w *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	ListByVendor(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error)
	// TotalPendingByVendor sums requests not yet rejected or paid, so repeated
	// requests cannot overdraw the available balance.
	TotalPendingByVendor(ctx context.Context, vendorID string) (int64, error)
}

type GormWithdrawalRepo struct {
	db *gorm.DB
}

func NewGormWithdrawalRepo(db *gorm.DB) *GormWithdrawalRepo {
	return &GormWithdrawalRepo{db: db}
}

func (r *GormWithdrawalRepo) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *GormWithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *GormWithdrawalRepo) ListByVendor(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error) {
	var reqs []domain.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *GormWithdrawalRepo) TotalPendingByVendor(ctx context.Context, vendorID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.WithdrawalRequest{}).
		Where("vendor_id = ? AND status IN ?", vendorID, []domain.WithdrawalStatus{
			domain.WithdrawalPending,
			domain.WithdrawalProcessing,
		}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
