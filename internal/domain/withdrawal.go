package domain

import (
	"fmt"
	"strings"
	"time"
)

// WithdrawalStatus represents the payout state of a withdrawal request. This
// engine only creates PENDING requests; later states belong to the downstream
// payout processor.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalPaid       WithdrawalStatus = "PAID"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
)

func (s WithdrawalStatus) String() string { return string(s) }

func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalPaid, WithdrawalRejected:
		return true
	}
	return false
}

// WithdrawalRequest records a vendor's request to pay out available balance.
// Creating one does not move money.
type WithdrawalRequest struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	VendorID  string           `gorm:"type:uuid;not null"`
	Amount    int64            `gorm:"not null"`
	MethodID  string           `gorm:"type:varchar(100);not null"`
	Status    WithdrawalStatus `gorm:"type:varchar(15);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *WithdrawalRequest) Validate() error {
	if strings.TrimSpace(w.VendorID) == "" {
		return fmt.Errorf("%w: vendor id is required", ErrValidation)
	}
	if w.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(w.MethodID) == "" {
		return fmt.Errorf("%w: method id is required", ErrValidation)
	}
	return nil
}

// VendorWallet is a derived view over the escrow ledger: it is recomputed by
// summing order amounts by escrow status across all of a vendor's batches and
// must always be reconcilable from the ledger.
type VendorWallet struct {
	VendorID         string
	AvailableBalance int64
	PendingBalance   int64
	TotalEarned      int64
	CalculatedAt     time.Time
}
