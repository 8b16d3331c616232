package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/queue"
)

func TestNewRetryScannerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRetryScanner(nil, &fakePublisher{}, time.Second, 10, zap.NewNop()); err == nil {
		t.Fatal("expected an error without a task repository")
	}
	if _, err := NewRetryScanner(&fakeTaskRepo{}, nil, time.Second, 10, zap.NewNop()); err == nil {
		t.Fatal("expected an error without a publisher")
	}
}

func TestRetryScannerScanDueRepublishesTasks(t *testing.T) {
	t.Parallel()

	due := []domain.SettlementTask{
		{ID: "t1", OrderID: "o1", Action: domain.ActionCapture, Status: domain.TaskPending},
		{ID: "t2", OrderID: "o2", Action: domain.ActionRefund, Status: domain.TaskPending},
	}

	cleared := make([]string, 0, 2)
	tasks := &fakeTaskRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
			return due, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			cleared = append(cleared, id)
			return nil
		},
	}

	published := make([]string, 0, 2)
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.TaskMessage) error {
			published = append(published, queueName+":"+msg.TaskID)
			return nil
		},
	}

	scanner := newTestRetryScanner(t, tasks, publisher)

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if len(published) != 2 || published[0] != "settle.capture:t1" || published[1] != "settle.refund:t2" {
		t.Fatalf("published = %v, want both tasks on their action queues", published)
	}
	if len(cleared) != 2 {
		t.Fatalf("cleared = %v, want both retry timestamps cleared", cleared)
	}
}

func TestRetryScannerContinuesPastPublishFailure(t *testing.T) {
	t.Parallel()

	due := []domain.SettlementTask{
		{ID: "t1", OrderID: "o1", Action: domain.ActionCapture, Status: domain.TaskPending},
		{ID: "t2", OrderID: "o2", Action: domain.ActionCapture, Status: domain.TaskPending},
	}

	cleared := make([]string, 0, 1)
	tasks := &fakeTaskRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
			return due, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			cleared = append(cleared, id)
			return nil
		},
	}

	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.TaskMessage) error {
			if msg.TaskID == "t1" {
				return errors.New("broker hiccup")
			}
			return nil
		},
	}

	scanner := newTestRetryScanner(t, tasks, publisher)

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	// t1 keeps its retry timestamp for the next sweep; t2 still went out.
	if len(cleared) != 1 || cleared[0] != "t2" {
		t.Fatalf("cleared = %v, want only t2", cleared)
	}
}

func TestRetryScannerScanErrorPropagates(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskRepo{
		getDueForRetryFn: func(ctx context.Context, now time.Time, limit int) ([]domain.SettlementTask, error) {
			return nil, errors.New("database offline")
		},
	}

	scanner := newTestRetryScanner(t, tasks, &fakePublisher{})

	if err := scanner.scanDue(context.Background()); err == nil {
		t.Fatal("expected the fetch error to propagate")
	}
}

func newTestRetryScanner(t *testing.T, tasks *fakeTaskRepo, publisher *fakePublisher) *RetryScanner {
	t.Helper()

	scanner, err := NewRetryScanner(tasks, publisher, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}
	scanner.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return scanner
}
