package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/repository"
)

func TestWalletServiceGetWalletComputesBalances(t *testing.T) {
	t.Parallel()

	orders := &fakeOrderRepo{
		walletTotalsFn: func(ctx context.Context, vendorID string) ([]repository.WalletRow, error) {
			return []repository.WalletRow{
				{EscrowStatus: domain.EscrowReleased, Total: 20_000},
				{EscrowStatus: domain.EscrowHeld, Total: 7_500},
			}, nil
		},
	}
	withdrawals := &fakeWithdrawalRepo{
		totalPendingFn: func(ctx context.Context, vendorID string) (int64, error) {
			return 6_000, nil
		},
	}

	svc := newTestWalletService(t, orders, withdrawals)

	wallet, err := svc.GetWallet(context.Background(), "v1")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if wallet.TotalEarned != 20_000 {
		t.Fatalf("totalEarned = %d, want released sum", wallet.TotalEarned)
	}
	if wallet.PendingBalance != 7_500 {
		t.Fatalf("pendingBalance = %d, want held sum", wallet.PendingBalance)
	}
	if wallet.AvailableBalance != 14_000 {
		t.Fatalf("availableBalance = %d, want earnings minus reserved withdrawals", wallet.AvailableBalance)
	}
}

func TestWalletServiceAvailableBalanceNeverNegative(t *testing.T) {
	t.Parallel()

	orders := &fakeOrderRepo{
		walletTotalsFn: func(ctx context.Context, vendorID string) ([]repository.WalletRow, error) {
			return []repository.WalletRow{{EscrowStatus: domain.EscrowReleased, Total: 1_000}}, nil
		},
	}
	withdrawals := &fakeWithdrawalRepo{
		totalPendingFn: func(ctx context.Context, vendorID string) (int64, error) {
			// A withdrawal request approved before a refund clawed earnings back.
			return 5_000, nil
		},
	}

	svc := newTestWalletService(t, orders, withdrawals)

	wallet, err := svc.GetWallet(context.Background(), "v1")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if wallet.AvailableBalance != 0 {
		t.Fatalf("availableBalance = %d, want clamped to 0", wallet.AvailableBalance)
	}
}

func TestWalletServiceCreateWithdrawalBelowMinimum(t *testing.T) {
	t.Parallel()

	svc := newTestWalletService(t, &fakeOrderRepo{}, &fakeWithdrawalRepo{})

	_, err := svc.CreateWithdrawal(context.Background(), "v1", 4_999, "m1")
	if !errors.Is(err, domain.ErrBelowMinimum) {
		t.Fatalf("CreateWithdrawal() error = %v, want ErrBelowMinimum", err)
	}
}

func TestWalletServiceCreateWithdrawalOverAvailable(t *testing.T) {
	t.Parallel()

	orders := &fakeOrderRepo{
		walletTotalsFn: func(ctx context.Context, vendorID string) ([]repository.WalletRow, error) {
			return []repository.WalletRow{{EscrowStatus: domain.EscrowReleased, Total: 10_000}}, nil
		},
	}
	svc := newTestWalletService(t, orders, &fakeWithdrawalRepo{})

	_, err := svc.CreateWithdrawal(context.Background(), "v1", 15_000, "m1")
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("CreateWithdrawal() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestWalletServiceCreateWithdrawalFilesPendingRequest(t *testing.T) {
	t.Parallel()

	orders := &fakeOrderRepo{
		walletTotalsFn: func(ctx context.Context, vendorID string) ([]repository.WalletRow, error) {
			return []repository.WalletRow{{EscrowStatus: domain.EscrowReleased, Total: 10_000}}, nil
		},
	}

	var created *domain.WithdrawalRequest
	withdrawals := &fakeWithdrawalRepo{
		createFn: func(ctx context.Context, w *domain.WithdrawalRequest) error {
			created = w
			return nil
		},
	}

	notifier := &fakeNotifier{}
	svc, err := NewWalletService(orders, withdrawals, notifier, 5_000, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWalletService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	request, err := svc.CreateWithdrawal(context.Background(), "v1", 8_000, "m1")
	if err != nil {
		t.Fatalf("CreateWithdrawal() error = %v", err)
	}
	if request.Status != domain.WithdrawalPending {
		t.Fatalf("status = %s, want PENDING", request.Status)
	}
	if created == nil || created.Amount != 8_000 {
		t.Fatal("expected the request persisted with the full amount")
	}
	if !notifier.sawType(notify.TypeWithdrawalFiled) {
		t.Fatal("expected a withdrawal-filed notification")
	}
}

func newTestWalletService(t *testing.T, orders repository.OrderRepository, withdrawals repository.WithdrawalRepository) *WalletService {
	t.Helper()

	svc, err := NewWalletService(orders, withdrawals, nil, 5_000, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWalletService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

type fakeWithdrawalRepo struct {
	createFn       func(ctx context.Context, w *domain.WithdrawalRequest) error
	getByIDFn      func(ctx context.Context, id string) (*domain.WithdrawalRequest, error)
	listFn         func(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error)
	totalPendingFn func(ctx context.Context, vendorID string) (int64, error)
}

func (f *fakeWithdrawalRepo) Create(ctx context.Context, w *domain.WithdrawalRequest) error {
	if f.createFn != nil {
		return f.createFn(ctx, w)
	}
	return nil
}

func (f *fakeWithdrawalRepo) GetByID(ctx context.Context, id string) (*domain.WithdrawalRequest, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWithdrawalRepo) ListByVendor(ctx context.Context, vendorID string) ([]domain.WithdrawalRequest, error) {
	if f.listFn != nil {
		return f.listFn(ctx, vendorID)
	}
	return nil, nil
}

func (f *fakeWithdrawalRepo) TotalPendingByVendor(ctx context.Context, vendorID string) (int64, error) {
	if f.totalPendingFn != nil {
		return f.totalPendingFn(ctx, vendorID)
	}
	return 0, nil
}
