package repository

import (
	"context"
	"errors"
	"time"

	"github.com/groupcart/settlement-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaskRepository interface {
	Create(ctx context.Context, t *domain.SettlementTask) error
	GetByID(ctx context.Context, id string) (*domain.SettlementTask, error)
	// FindOpenByOrderAndAction returns an existing non-terminal task for the
	// order/action pair, used to keep re-fired batch triggers from queueing
	// duplicates.
	FindOpenByOrderAndAction(ctx context.Context, orderID string, action domain.SettlementAction) (*domain.SettlementTask, error)
	// LockForProcessing row-locks the task and moves it to IN_FLIGHT. Returns
	// nil without error when the task is already terminal or in flight.
	LockForProcessing(ctx context.Context, id string) (*domain.SettlementTask, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// ScheduleRetry moves the task back to PENDING with a retry timestamp and
	// bumps the attempt counter.
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error)
	ClearNextRetryAt(ctx context.Context, id string) error
}

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.SettlementAttempt) error
	GetByTaskID(ctx context.Context, taskID string) ([]domain.SettlementAttempt, error)
}

type GormTaskRepo struct {
	db *gorm.DB
}

func NewGormTaskRepo(db *gorm.DB) *GormTaskRepo {
	return &GormTaskRepo{db: db}
}

func (r *GormTaskRepo) Create(ctx context.Context, t *domain.SettlementTask) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *GormTaskRepo) GetByID(ctx context.Context, id string) (*domain.SettlementTask, error) {
	var task domain.SettlementTask
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *GormTaskRepo) FindOpenByOrderAndAction(ctx context.Context, orderID string, action domain.SettlementAction) (*domain.SettlementTask, error) {
	var task domain.SettlementTask
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND action = ? AND status IN ?", orderID, action, []domain.TaskStatus{
			domain.TaskPending,
			domain.TaskInFlight,
		}).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *GormTaskRepo) LockForProcessing(ctx context.Context, id string) (*domain.SettlementTask, error) {
	var task domain.SettlementTask
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Skip if already terminal or claimed by another worker.
	switch task.Status {
	case domain.TaskSucceeded, domain.TaskFailed, domain.TaskInFlight:
		return nil, nil
	}

	task.Status = domain.TaskInFlight
	if err := r.db.WithContext(ctx).
		Model(&task).
		Update("status", domain.TaskInFlight).Error; err != nil {
		return nil, err
	}

	return &task, nil
}

func (r *GormTaskRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, domain.TaskSucceeded)
}

func (r *GormTaskRepo) MarkFailed(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, domain.TaskFailed)
}

func (r *GormTaskRepo) updateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	result := r.db.WithContext(ctx).
		Model(&domain.SettlementTask{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormTaskRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.SettlementTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.TaskPending,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormTaskRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
	var tasks []domain.SettlementTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.TaskPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *GormTaskRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.SettlementTask{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.SettlementAttempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormAttemptRepo) GetByTaskID(ctx context.Context, taskID string) ([]domain.SettlementAttempt, error) {
	var attempts []domain.SettlementAttempt
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
