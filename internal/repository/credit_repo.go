package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Consumption is the outcome of applying credits to an order.
type Consumption struct {
	// Consumed lists the entries marked fully used, in consumption order.
	Consumed []domain.CreditEntry
	// Remainder is the freshly minted entry for the unconsumed tail of the
	// last entry, nil when the amounts lined up exactly.
	Remainder *domain.CreditEntry
	// Total is the amount actually applied to the order.
	Total int64
}

type CreditRepository interface {
	Create(ctx context.Context, c *domain.CreditEntry) error
	GetByID(ctx context.Context, id string) (*domain.CreditEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CreditEntry, error)
	// Balance sums unused, unexpired entries for the user at now.
	Balance(ctx context.Context, userID string, now time.Time) (int64, error)
	// ConsumeForOrder greedily consumes available entries, soonest expiry
	// first then oldest first, until amount is covered. All-or-nothing: if
	// the available sum is short, nothing is consumed and
	// domain.ErrInsufficientCredits is returned. A partially needed entry is
	// marked fully used and a remainder entry is minted carrying the
	// original source, referral, and expiry lineage.
	ConsumeForOrder(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*Consumption, error)
}

type GormCreditRepo struct {
	db *gorm.DB
}

func NewGormCreditRepo(db *gorm.DB) *GormCreditRepo {
	return &GormCreditRepo{db: db}
}

func (r *GormCreditRepo) Create(ctx context.Context, c *domain.CreditEntry) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *GormCreditRepo) GetByID(ctx context.Context, id string) (*domain.CreditEntry, error) {
	var entry domain.CreditEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *GormCreditRepo) ListByUser(ctx context.Context, userID string) ([]domain.CreditEntry, error) {
	var entries []domain.CreditEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *GormCreditRepo) Balance(ctx context.Context, userID string, now time.Time) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&domain.CreditEntry{}).
		Where("user_id = ? AND used_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// consumptionPlan is the set of writes ConsumeForOrder must apply: entries
// to mark fully used, in consumption order, plus an optional remainder
// entry to mint for the unconsumed tail of the last one.
type consumptionPlan struct {
	consume   []domain.CreditEntry
	remainder *domain.CreditEntry
}

// planConsumption selects entries greedily until amount is covered. The
// slice must already be ordered soonest expiry first, oldest first.
// All-or-nothing: when the available sum is short, nothing is selected and
// domain.ErrInsufficientCredits is returned. A partially needed final
// entry is consumed in full and the remainder minted with the original
// Source/ReferralID/ExpiresAt lineage.
func planConsumption(available []domain.CreditEntry, amount int64) (*consumptionPlan, error) {
	var sum int64
	for i := range available {
		sum += available[i].Amount
	}
	if sum < amount {
		return nil, domain.ErrInsufficientCredits
	}

	plan := &consumptionPlan{}
	remaining := amount
	for i := range available {
		if remaining <= 0 {
			break
		}
		entry := available[i]
		plan.consume = append(plan.consume, entry)

		if entry.Amount > remaining {
			plan.remainder = &domain.CreditEntry{
				ID:         uuid.NewString(),
				UserID:     entry.UserID,
				Amount:     entry.Amount - remaining,
				Source:     entry.Source,
				ReferralID: entry.ReferralID,
				ExpiresAt:  entry.ExpiresAt,
			}
			remaining = 0
			break
		}

		remaining -= entry.Amount
	}
	return plan, nil
}

func (r *GormCreditRepo) ConsumeForOrder(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*Consumption, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	var out Consumption

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var available []domain.CreditEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND used_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", userID, now).
			Order("expires_at ASC NULLS LAST, created_at ASC").
			Find(&available).Error
		if err != nil {
			return err
		}

		plan, err := planConsumption(available, amount)
		if err != nil {
			return err
		}

		for i := range plan.consume {
			entry := plan.consume[i]

			result := tx.Model(&domain.CreditEntry{}).
				Where("id = ? AND used_at IS NULL", entry.ID).
				Updates(map[string]any{
					"used_at":  now,
					"order_id": orderID,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Lost a race despite the lock; abort and let the caller retry.
				return domain.ErrConflict
			}

			entry.UsedAt = &now
			entry.OrderID = &orderID
			out.Consumed = append(out.Consumed, entry)
		}

		if plan.remainder != nil {
			if err := tx.Create(plan.remainder).Error; err != nil {
				return err
			}
			out.Remainder = plan.remainder
		}

		out.Total = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
