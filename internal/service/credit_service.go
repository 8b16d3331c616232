package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/repository"
)

const defaultCreditExpiryDays = 90

// CreditService owns the credits ledger: issuance with an expiry window,
// balance queries over unused unexpired entries, and greedy apply-to-order
// consumption with remainder splitting.
type CreditService struct {
	credits    repository.CreditRepository
	notifier   notify.Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	expiryDays int
	now        func() time.Time
}

func NewCreditService(
	credits repository.CreditRepository,
	notifier notify.Notifier,
	expiryDays int,
	logger *zap.Logger,
) (*CreditService, error) {
	if credits == nil {
		return nil, fmt.Errorf("credit repository is required")
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if expiryDays <= 0 {
		expiryDays = defaultCreditExpiryDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CreditService{
		credits:    credits,
		notifier:   notifier,
		logger:     logger,
		expiryDays: expiryDays,
		now:        time.Now,
	}, nil
}

func (s *CreditService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Issue mints a credit entry expiring after the configured window.
func (s *CreditService) Issue(
	ctx context.Context,
	userID string,
	amount int64,
	source domain.CreditSource,
	referralID *string,
) (*domain.CreditEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	if !source.IsValid() {
		return nil, fmt.Errorf("%w: invalid credit source %q", domain.ErrValidation, source)
	}

	expiresAt := s.now().UTC().Add(time.Duration(s.expiryDays) * 24 * time.Hour)
	entry := &domain.CreditEntry{
		ID:         uuid.NewString(),
		UserID:     strings.TrimSpace(userID),
		Amount:     amount,
		Source:     source,
		ReferralID: referralID,
		ExpiresAt:  &expiresAt,
	}
	if err := s.credits.Create(ctx, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncCreditsIssued(source.String())
	}

	n := notify.Notification{
		UserID:  entry.UserID,
		Type:    notify.TypeCreditIssued,
		Title:   "Credit received",
		Message: fmt.Sprintf("You received a credit of %d", amount),
		Data: map[string]any{
			"creditId": entry.ID,
			"amount":   amount,
			"source":   source.String(),
		},
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("credit notification dispatch failed",
			zap.String("creditId", entry.ID),
			zap.Error(err),
		)
	}

	return entry, nil
}

// Balance sums unused, unexpired entries for the user.
func (s *CreditService) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.credits.Balance(ctx, strings.TrimSpace(userID), s.now())
}

func (s *CreditService) ListByUser(ctx context.Context, userID string) ([]domain.CreditEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.credits.ListByUser(ctx, strings.TrimSpace(userID))
}

// ApplyToOrder consumes credits against an order, soonest expiry first.
// All-or-nothing: a short balance returns domain.ErrInsufficientCredits and
// consumes nothing. Returns the amount consumed.
func (s *CreditService) ApplyToOrder(ctx context.Context, userID, orderID string, amount int64) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(orderID) == "" {
		return 0, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	consumption, err := s.credits.ConsumeForOrder(ctx, strings.TrimSpace(userID), strings.TrimSpace(orderID), amount, s.now())
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.IncCreditsConsumed()
	}
	if consumption.Remainder != nil {
		s.logger.Info("credit entry split on partial consumption",
			zap.String("userId", userID),
			zap.String("remainderId", consumption.Remainder.ID),
			zap.Int64("remainderAmount", consumption.Remainder.Amount),
		)
	}

	return consumption.Total, nil
}
