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

const defaultMinimumWithdrawal int64 = 5000

// WalletService derives vendor balances from the escrow ledger and records
// withdrawal requests. There is no stored wallet counter: available and
// pending balances are recomputed from order sums on every read, so they can
// never drift from the ledger.
type WalletService struct {
	orders      repository.OrderRepository
	withdrawals repository.WithdrawalRepository
	notifier    notify.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	minimum     int64
	now         func() time.Time
}

func NewWalletService(
	orders repository.OrderRepository,
	withdrawals repository.WithdrawalRepository,
	notifier notify.Notifier,
	minimumWithdrawal int64,
	logger *zap.Logger,
) (*WalletService, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if withdrawals == nil {
		return nil, fmt.Errorf("withdrawal repository is required")
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if minimumWithdrawal <= 0 {
		minimumWithdrawal = defaultMinimumWithdrawal
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WalletService{
		orders:      orders,
		withdrawals: withdrawals,
		notifier:    notifier,
		logger:      logger,
		minimum:     minimumWithdrawal,
		now:         time.Now,
	}, nil
}

func (s *WalletService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// GetWallet recomputes the vendor's balances: RELEASED order sums feed
// totalEarned, HELD sums feed pendingBalance, and availableBalance is
// earnings minus withdrawals already requested.
func (s *WalletService) GetWallet(ctx context.Context, vendorID string) (*domain.VendorWallet, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendor id is required", domain.ErrValidation)
	}

	rows, err := s.orders.WalletTotals(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum escrow ledger: %w", err)
	}

	wallet := &domain.VendorWallet{
		VendorID:     vendorID,
		CalculatedAt: s.now().UTC(),
	}
	for _, row := range rows {
		switch row.EscrowStatus {
		case domain.EscrowReleased:
			wallet.TotalEarned = row.Total
		case domain.EscrowHeld:
			wallet.PendingBalance = row.Total
		}
	}

	reserved, err := s.withdrawals.TotalPendingByVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}
	wallet.AvailableBalance = wallet.TotalEarned - reserved
	if wallet.AvailableBalance < 0 {
		wallet.AvailableBalance = 0
	}

	return wallet, nil
}

// CreateWithdrawal records a PENDING payout request. It moves no money;
// downstream payout processing is external.
func (s *WalletService) CreateWithdrawal(ctx context.Context, vendorID string, amount int64, methodID string) (*domain.WithdrawalRequest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendor id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(methodID) == "" {
		return nil, fmt.Errorf("%w: method id is required", domain.ErrValidation)
	}
	if amount < s.minimum {
		return nil, fmt.Errorf("%w: amount %d is below the minimum withdrawal %d", domain.ErrBelowMinimum, amount, s.minimum)
	}

	wallet, err := s.GetWallet(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if amount > wallet.AvailableBalance {
		return nil, fmt.Errorf("%w: amount %d exceeds available balance %d", domain.ErrInsufficientBalance, amount, wallet.AvailableBalance)
	}

	request := &domain.WithdrawalRequest{
		ID:       uuid.NewString(),
		VendorID: vendorID,
		Amount:   amount,
		MethodID: strings.TrimSpace(methodID),
		Status:   domain.WithdrawalPending,
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if err := s.withdrawals.Create(ctx, request); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncWithdrawalRequested()
	}

	n := notify.Notification{
		UserID:  vendorID,
		Type:    notify.TypeWithdrawalFiled,
		Title:   "Withdrawal request filed",
		Message: fmt.Sprintf("Your withdrawal request of %d is pending", amount),
		Data: map[string]any{
			"withdrawalId": request.ID,
			"amount":       amount,
		},
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("withdrawal notification dispatch failed",
			zap.String("withdrawalId", request.ID),
			zap.Error(err),
		)
	}

	return request, nil
}

func (s *WalletService) ListWithdrawals(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, fmt.Errorf("%w: vendor id is required", domain.ErrValidation)
	}
	return s.withdrawals.ListByVendor(ctx, strings.TrimSpace(vendorID))
}
