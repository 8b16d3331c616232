package domain

import (
	"fmt"
	"strings"
	"time"
)

// EscrowStatus represents the settlement state of an order's funds.
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "PENDING"
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

func (s EscrowStatus) String() string { return string(s) }

func (s EscrowStatus) IsValid() bool {
	switch s {
	case EscrowPending, EscrowHeld, EscrowReleased, EscrowRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further settlement action applies.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// CanTransition reports whether the escrow status may move to next. Funds move
// PENDING -> HELD -> {RELEASED | REFUNDED} and never reverse.
func (s EscrowStatus) CanTransition(next EscrowStatus) bool {
	switch s {
	case EscrowPending:
		return next == EscrowHeld
	case EscrowHeld:
		return next == EscrowReleased || next == EscrowRefunded
	}
	return false
}

func ParseEscrowStatusFromString(s string) (EscrowStatus, error) {
	st := EscrowStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid escrow status %q", ErrValidation, s)
	}
	return st, nil
}

// Order is a buyer's stake in a regional batch. Amount is in cents.
type Order struct {
	ID               string       `gorm:"type:uuid;primaryKey"`
	BatchID          string       `gorm:"type:uuid;not null"`
	BuyerID          string       `gorm:"type:uuid;not null"`
	Quantity         int          `gorm:"not null"`
	Amount           int64        `gorm:"not null"`
	EscrowStatus     EscrowStatus `gorm:"type:varchar(10);not null"`
	PaymentReference *string      `gorm:"type:varchar(255)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (o *Order) Validate() error {
	if strings.TrimSpace(o.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if strings.TrimSpace(o.BuyerID) == "" {
		return fmt.Errorf("%w: buyer id is required", ErrValidation)
	}
	if o.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
	}
	if o.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !o.EscrowStatus.IsValid() {
		return fmt.Errorf("%w: invalid escrow status %q", ErrValidation, o.EscrowStatus)
	}
	return nil
}
