package domain

import (
	"fmt"
	"strings"
	"time"
)

// CreditSource identifies why a credit entry was issued.
type CreditSource string

const (
	SourceReferralReferrer CreditSource = "referral_referrer"
	SourceReferralReferee  CreditSource = "referral_referee"
	SourceErrandCompletion CreditSource = "errand_completion"
	SourceBonus            CreditSource = "bonus"
	SourcePartialRefund    CreditSource = "partial_refund"
)

func (s CreditSource) String() string { return string(s) }

func (s CreditSource) IsValid() bool {
	switch s {
	case SourceReferralReferrer, SourceReferralReferee, SourceErrandCompletion, SourceBonus, SourcePartialRefund:
		return true
	}
	return false
}

func ParseCreditSourceFromString(s string) (CreditSource, error) {
	src := CreditSource(strings.ToLower(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", fmt.Errorf("%w: invalid credit source %q", ErrValidation, s)
	}
	return src, nil
}

// CreditEntry is an expiring monetary entitlement. Entries are immutable once
// created except for UsedAt/OrderID being set exactly once on consumption.
// Partial consumption never splits an entry in place: the entry is marked
// fully used and a new entry is minted for the remainder, carrying the
// original Source/ReferralID/ExpiresAt lineage. Expired entries remain as
// historical records and are simply excluded from the balance.
type CreditEntry struct {
	ID         string       `gorm:"type:uuid;primaryKey"`
	UserID     string       `gorm:"type:uuid;not null"`
	Amount     int64        `gorm:"not null"`
	Source     CreditSource `gorm:"type:varchar(20);not null"`
	ReferralID *string      `gorm:"type:uuid"`
	ExpiresAt  *time.Time
	UsedAt     *time.Time
	OrderID    *string `gorm:"type:uuid"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *CreditEntry) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if c.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !c.Source.IsValid() {
		return fmt.Errorf("%w: invalid credit source %q", ErrValidation, c.Source)
	}
	return nil
}

// Available reports whether the entry counts toward the balance at now.
func (c *CreditEntry) Available(now time.Time) bool {
	if c.UsedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}
