package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/repository"
)

func TestCreditServiceIssueSetsExpiry(t *testing.T) {
	t.Parallel()

	credits := newFakeCreditRepo()
	notifier := &fakeNotifier{}

	svc, err := NewCreditService(credits, notifier, 90, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCreditService() error = %v", err)
	}
	issuedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	entry, err := svc.Issue(context.Background(), "u1", 2500, domain.SourceReferralReferrer, nil)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if entry.ExpiresAt == nil {
		t.Fatal("expected an expiry on the issued entry")
	}
	wantExpiry := issuedAt.Add(90 * 24 * time.Hour)
	if !entry.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", entry.ExpiresAt, wantExpiry)
	}
	if entry.UsedAt != nil {
		t.Fatal("a fresh entry must not be marked used")
	}
	if !notifier.sawType(notify.TypeCreditIssued) {
		t.Fatal("expected a credit-issued notification")
	}
}

func TestCreditServiceIssueValidation(t *testing.T) {
	t.Parallel()

	svc, err := NewCreditService(newFakeCreditRepo(), nil, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCreditService() error = %v", err)
	}

	cases := []struct {
		name   string
		userID string
		amount int64
		source domain.CreditSource
	}{
		{name: "missing user", userID: "", amount: 100, source: domain.SourceBonus},
		{name: "zero amount", userID: "u1", amount: 0, source: domain.SourceBonus},
		{name: "negative amount", userID: "u1", amount: -50, source: domain.SourceBonus},
		{name: "unknown source", userID: "u1", amount: 100, source: domain.CreditSource("STOCK_OPTIONS")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Issue(context.Background(), tc.userID, tc.amount, tc.source, nil)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Issue() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreditServiceApplyToOrderReturnsConsumedTotal(t *testing.T) {
	t.Parallel()

	credits := newFakeCreditRepo()
	remainderExpiry := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	credits.consumeFn = func(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*repository.Consumption, error) {
		return &repository.Consumption{
			Consumed: []domain.CreditEntry{{ID: "c1", UserID: userID, Amount: 1700}},
			Remainder: &domain.CreditEntry{
				ID:        "c2",
				UserID:    userID,
				Amount:    500,
				Source:    domain.SourceReferralReferee,
				ExpiresAt: &remainderExpiry,
			},
			Total: 1200,
		}, nil
	}

	svc, err := NewCreditService(credits, nil, 90, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCreditService() error = %v", err)
	}

	consumed, err := svc.ApplyToOrder(context.Background(), "u1", "o1", 1200)
	if err != nil {
		t.Fatalf("ApplyToOrder() error = %v", err)
	}
	if consumed != 1200 {
		t.Fatalf("consumed = %d, want 1200", consumed)
	}
}

func TestCreditServiceApplyToOrderInsufficientBalance(t *testing.T) {
	t.Parallel()

	credits := newFakeCreditRepo()
	credits.consumeFn = func(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*repository.Consumption, error) {
		return nil, domain.ErrInsufficientCredits
	}

	svc, err := NewCreditService(credits, nil, 90, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCreditService() error = %v", err)
	}

	_, err = svc.ApplyToOrder(context.Background(), "u1", "o1", 9999)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("ApplyToOrder() error = %v, want ErrInsufficientCredits", err)
	}
}

func TestCreditServiceBalanceRequiresUser(t *testing.T) {
	t.Parallel()

	svc, err := NewCreditService(newFakeCreditRepo(), nil, 90, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCreditService() error = %v", err)
	}

	_, err = svc.Balance(context.Background(), "  ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Balance() error = %v, want ErrValidation", err)
	}
}

type fakeCreditRepo struct {
	mu         sync.Mutex
	created    []domain.CreditEntry
	createFn   func(ctx context.Context, c *domain.CreditEntry) error
	getByIDFn  func(ctx context.Context, id string) (*domain.CreditEntry, error)
	listFn     func(ctx context.Context, userID string) ([]domain.CreditEntry, error)
	balanceFn  func(ctx context.Context, userID string, now time.Time) (int64, error)
	consumeFn  func(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*repository.Consumption, error)
}

func newFakeCreditRepo() *fakeCreditRepo {
	return &fakeCreditRepo{}
}

func (f *fakeCreditRepo) Create(ctx context.Context, c *domain.CreditEntry) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	f.mu.Lock()
	f.created = append(f.created, *c)
	f.mu.Unlock()
	return nil
}

func (f *fakeCreditRepo) entries() []domain.CreditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CreditEntry, len(f.created))
	copy(out, f.created)
	return out
}

func (f *fakeCreditRepo) GetByID(ctx context.Context, id string) (*domain.CreditEntry, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCreditRepo) ListByUser(ctx context.Context, userID string) ([]domain.CreditEntry, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeCreditRepo) Balance(ctx context.Context, userID string, now time.Time) (int64, error) {
	if f.balanceFn != nil {
		return f.balanceFn(ctx, userID, now)
	}
	return 0, nil
}

func (f *fakeCreditRepo) ConsumeForOrder(ctx context.Context, userID, orderID string, amount int64, now time.Time) (*repository.Consumption, error) {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, userID, orderID, amount, now)
	}
	return nil, domain.ErrInsufficientCredits
}
