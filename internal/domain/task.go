package domain

import (
	"fmt"
	"strings"
	"time"
)

// SettlementAction is the payment-processor operation a task carries out.
type SettlementAction string

const (
	ActionCapture SettlementAction = "CAPTURE"
	ActionRefund  SettlementAction = "REFUND"
)

func (a SettlementAction) String() string { return string(a) }

func (a SettlementAction) IsValid() bool {
	return a == ActionCapture || a == ActionRefund
}

func ParseSettlementActionFromString(s string) (SettlementAction, error) {
	a := SettlementAction(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: invalid settlement action %q", ErrValidation, s)
	}
	return a, nil
}

// TaskStatus represents the processing state of a settlement task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskInFlight  TaskStatus = "IN_FLIGHT"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInFlight, TaskSucceeded, TaskFailed:
		return true
	}
	return false
}

// SettlementTask is the bounded-retry record for one escrow side effect (a
// capture or refund of a single order). The order's status transition commits
// first; the task carries the external payment call and is retried with
// backoff until it succeeds or exhausts MaxRetries.
type SettlementTask struct {
	ID           string           `gorm:"type:uuid;primaryKey"`
	OrderID      string           `gorm:"type:uuid;not null"`
	BatchID      string           `gorm:"type:uuid;not null"`
	Action       SettlementAction `gorm:"type:varchar(10);not null"`
	Status       TaskStatus       `gorm:"type:varchar(10);not null"`
	AttemptCount int              `gorm:"not null;default:0"`
	MaxRetries   int              `gorm:"not null;default:5"`
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *SettlementTask) Validate() error {
	if strings.TrimSpace(t.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if strings.TrimSpace(t.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if !t.Action.IsValid() {
		return fmt.Errorf("%w: invalid settlement action %q", ErrValidation, t.Action)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: invalid task status %q", ErrValidation, t.Status)
	}
	return nil
}

// SettlementAttempt records a single payment-processor call for a task.
type SettlementAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	TaskID        string  `gorm:"type:uuid;not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
