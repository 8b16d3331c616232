package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a regional group-buy batch.
type BatchStatus string

const (
	BatchDraft      BatchStatus = "DRAFT"
	BatchActive     BatchStatus = "ACTIVE"
	BatchSuccessful BatchStatus = "SUCCESSFUL"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchDraft, BatchActive, BatchSuccessful, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the batch can never transition again.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchSuccessful, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the batch may move to next per the closed
// transition table: DRAFT -> ACTIVE -> {SUCCESSFUL, FAILED}, and any
// non-terminal state -> CANCELLED.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchDraft:
		return next == BatchActive || next == BatchCancelled
	case BatchActive:
		return next == BatchSuccessful || next == BatchFailed || next == BatchCancelled
	}
	return false
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// RegionalBatch pools orders against one listing within a region. The batch
// succeeds when CurrentQuantity reaches MinimumQuantity before Deadline.
// CurrentQuantity is maintained by order creation, never recomputed lazily.
type RegionalBatch struct {
	ID              string      `gorm:"type:uuid;primaryKey"`
	ListingID       string      `gorm:"type:uuid;not null"`
	VendorID        string      `gorm:"type:uuid;not null"`
	Region          string      `gorm:"type:varchar(100);not null"`
	UnitPrice       int64       `gorm:"not null"`
	MinimumQuantity int         `gorm:"not null"`
	CurrentQuantity int         `gorm:"not null;default:0"`
	Deadline        time.Time   `gorm:"not null"`
	Status          BatchStatus `gorm:"type:varchar(20);not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (b *RegionalBatch) Validate() error {
	if strings.TrimSpace(b.ListingID) == "" {
		return fmt.Errorf("%w: listing id is required", ErrValidation)
	}
	if strings.TrimSpace(b.VendorID) == "" {
		return fmt.Errorf("%w: vendor id is required", ErrValidation)
	}
	if strings.TrimSpace(b.Region) == "" {
		return fmt.Errorf("%w: region is required", ErrValidation)
	}
	if b.UnitPrice <= 0 {
		return fmt.Errorf("%w: unit price must be positive", ErrValidation)
	}
	if b.MinimumQuantity < 1 {
		return fmt.Errorf("%w: minimum quantity must be >= 1", ErrValidation)
	}
	if b.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline is required", ErrValidation)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}

// ReachedMinimum reports whether the quantity threshold has been met.
func (b *RegionalBatch) ReachedMinimum() bool {
	return b.CurrentQuantity >= b.MinimumQuantity
}
