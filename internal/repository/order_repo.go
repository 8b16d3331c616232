package repository

import (
	"context"
	"errors"

	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
)

// WalletRow is one grouped sum over a vendor's orders by escrow status.
type WalletRow struct {
	EscrowStatus domain.EscrowStatus `gorm:"column:escrow_status"`
	Total        int64               `gorm:"column:total"`
}

type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.Order, error)
	ListByBatchAndStatus(ctx context.Context, batchID string, status domain.EscrowStatus) ([]domain.Order, error)
	// Transition applies a conditional status move and reports whether this
	// caller observed it. A false return with nil error means the order was
	// not in the expected from-status (already transitioned or never there).
	Transition(ctx context.Context, id string, from, to domain.EscrowStatus) (bool, error)
	TotalHeldByBatch(ctx context.Context, batchID string) (int64, error)
	DistinctBuyersByBatch(ctx context.Context, batchID string) ([]string, error)
	WalletTotals(ctx context.Context, vendorID string) ([]WalletRow, error)
}

type GormOrderRepo struct {
	db *gorm.DB
}

func NewGormOrderRepo(db *gorm.DB) *GormOrderRepo {
	return &GormOrderRepo{db: db}
}

func (r *GormOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *GormOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *GormOrderRepo) ListByBatchAndStatus(ctx context.Context, batchID string, status domain.EscrowStatus) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND escrow_status = ?", batchID, status).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *GormOrderRepo) Transition(ctx context.Context, id string, from, to domain.EscrowStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.ErrInvalidTransition
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND escrow_status = ?", id, from).
		Update("escrow_status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormOrderRepo) TotalHeldByBatch(ctx context.Context, batchID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("batch_id = ? AND escrow_status = ?", batchID, domain.EscrowHeld).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *GormOrderRepo) DistinctBuyersByBatch(ctx context.Context, batchID string) ([]string, error) {
	var buyers []string
	err := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("batch_id = ?", batchID).
		Distinct("buyer_id").
		Pluck("buyer_id", &buyers).Error
	if err != nil {
		return nil, err
	}
	return buyers, nil
}

func (r *GormOrderRepo) WalletTotals(ctx context.Context, vendorID string) ([]WalletRow, error) {
	var rows []WalletRow
	err := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Select("orders.escrow_status, COALESCE(SUM(orders.amount), 0) as total").
		Joins("JOIN regional_batches ON regional_batches.id = orders.batch_id").
		Where("regional_batches.vendor_id = ?", vendorID).
		Group("orders.escrow_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
