package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/payment"
	"github.com/groupcart/settlement-engine/internal/queue"
)

func TestSettlementWorkerCaptureSuccess(t *testing.T) {
	t.Parallel()

	reference := "pay-ref-1"
	task := &domain.SettlementTask{
		ID:         "t1",
		OrderID:    "o1",
		BatchID:    "b1",
		Action:     domain.ActionCapture,
		Status:     domain.TaskPending,
		MaxRetries: 5,
	}

	var succeeded, failed bool
	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return task, nil
		},
		markSucceededFn: func(ctx context.Context, id string) error {
			succeeded = true
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			failed = true
			return nil
		},
	}
	orders := &fakeOrderRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, PaymentReference: &reference}, nil
		},
	}
	attempts := newFakeAttemptRepo()

	var captured string
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			captured = ref
			return &payment.ProcessorResponse{StatusCode: 200, TransactionID: "tx1"}, nil
		},
	}

	limiter := &fakeRateLimiter{}
	worker := newTestSettlementWorker(t, tasks, attempts, orders, processor, limiter)

	err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionCapture})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if captured != reference {
		t.Fatalf("captured reference = %s, want %s", captured, reference)
	}
	if !succeeded || failed {
		t.Fatalf("succeeded = %v, failed = %v, want success only", succeeded, failed)
	}
	if got := limiter.waitedScope(); got != "capture" {
		t.Fatalf("rate limiter scope = %s, want capture", got)
	}

	recorded := attempts.all()
	if len(recorded) != 1 {
		t.Fatalf("attempts recorded = %d, want 1", len(recorded))
	}
	if recorded[0].AttemptNumber != 1 || recorded[0].Error != nil {
		t.Fatal("expected a clean first attempt record")
	}
	if recorded[0].StatusCode == nil || *recorded[0].StatusCode != 200 {
		t.Fatal("expected the processor status code on the attempt")
	}
}

func TestSettlementWorkerTransientFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	reference := "pay-ref-1"
	task := &domain.SettlementTask{
		ID:         "t1",
		OrderID:    "o1",
		Action:     domain.ActionRefund,
		Status:     domain.TaskPending,
		MaxRetries: 5,
	}

	var scheduledAt time.Time
	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return task, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			scheduledAt = nextRetryAt
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			t.Fatal("transient failure under the retry budget must not mark failed")
			return nil
		},
	}
	orders := &fakeOrderRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, PaymentReference: &reference}, nil
		},
	}
	processor := &fakeProcessor{
		refundFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			return nil, &payment.ProcessorError{StatusCode: 503, Message: "gateway busy", Transient: true}
		},
	}

	worker := newTestSettlementWorker(t, tasks, newFakeAttemptRepo(), orders, processor, &fakeRateLimiter{})

	err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionRefund})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	// First attempt, zero jitter: base delay exactly.
	want := worker.now().Add(time.Second)
	if !scheduledAt.Equal(want) {
		t.Fatalf("nextRetryAt = %v, want %v", scheduledAt, want)
	}
}

func TestSettlementWorkerRetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	reference := "pay-ref-1"
	task := &domain.SettlementTask{
		ID:           "t1",
		OrderID:      "o1",
		Action:       domain.ActionCapture,
		Status:       domain.TaskPending,
		AttemptCount: 4,
		MaxRetries:   5,
	}

	var failed bool
	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return task, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			t.Fatal("exhausted retry budget must not schedule another retry")
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			failed = true
			return nil
		},
	}
	orders := &fakeOrderRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, PaymentReference: &reference}, nil
		},
	}
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			return nil, &payment.ProcessorError{StatusCode: 503, Transient: true}
		},
	}

	worker := newTestSettlementWorker(t, tasks, newFakeAttemptRepo(), orders, processor, &fakeRateLimiter{})

	if err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionCapture}); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if !failed {
		t.Fatal("expected the task marked failed after the final attempt")
	}
}

func TestSettlementWorkerPermanentFailure(t *testing.T) {
	t.Parallel()

	reference := "pay-ref-1"
	task := &domain.SettlementTask{
		ID:         "t1",
		OrderID:    "o1",
		Action:     domain.ActionCapture,
		Status:     domain.TaskPending,
		MaxRetries: 5,
	}

	var failed bool
	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return task, nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			t.Fatal("permanent failure must not schedule a retry")
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			failed = true
			return nil
		},
	}
	orders := &fakeOrderRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, PaymentReference: &reference}, nil
		},
	}
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			return nil, &payment.ProcessorError{StatusCode: 422, Message: "authorization voided", Transient: false}
		},
	}

	attempts := newFakeAttemptRepo()
	worker := newTestSettlementWorker(t, tasks, attempts, orders, processor, &fakeRateLimiter{})

	if err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionCapture}); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if !failed {
		t.Fatal("expected the task marked failed on a permanent error")
	}

	recorded := attempts.all()
	if len(recorded) != 1 || recorded[0].Error == nil {
		t.Fatal("expected the attempt recorded with the error text")
	}
	if recorded[0].StatusCode == nil || *recorded[0].StatusCode != 422 {
		t.Fatal("expected the processor status code extracted from the error")
	}
}

func TestSettlementWorkerMissingPaymentReference(t *testing.T) {
	t.Parallel()

	task := &domain.SettlementTask{
		ID:         "t1",
		OrderID:    "o1",
		Action:     domain.ActionCapture,
		Status:     domain.TaskPending,
		MaxRetries: 5,
	}

	var failed bool
	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return task, nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			failed = true
			return nil
		},
	}
	orders := &fakeOrderRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id}, nil
		},
	}
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			t.Fatal("no processor call expected without a payment reference")
			return nil, nil
		},
	}

	worker := newTestSettlementWorker(t, tasks, newFakeAttemptRepo(), orders, processor, &fakeRateLimiter{})

	if err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionCapture}); err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}
	if !failed {
		t.Fatal("expected the task marked failed when the order carries no reference")
	}
}

func TestSettlementWorkerSkipsClaimedTask(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			// Terminal or claimed by another worker.
			return nil, nil
		},
	}
	processor := &fakeProcessor{
		captureFn: func(ctx context.Context, ref string) (*payment.ProcessorResponse, error) {
			t.Fatal("no processor call expected for a claimed task")
			return nil, nil
		},
	}

	worker := newTestSettlementWorker(t, tasks, newFakeAttemptRepo(), &fakeOrderRepo{}, processor, &fakeRateLimiter{})

	if err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "t1", OrderID: "o1", Action: domain.ActionCapture}); err != nil {
		t.Fatalf("processMessage() error = %v, want nil ack", err)
	}
}

func TestSettlementWorkerMissingTaskAcks(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskRepo{
		lockFn: func(ctx context.Context, id string) (*domain.SettlementTask, error) {
			return nil, domain.ErrNotFound
		},
	}

	worker := newTestSettlementWorker(t, tasks, newFakeAttemptRepo(), &fakeOrderRepo{}, &fakeProcessor{}, &fakeRateLimiter{})

	if err := worker.processMessage(context.Background(), queue.TaskMessage{TaskID: "ghost", OrderID: "o1", Action: domain.ActionCapture}); err != nil {
		t.Fatalf("processMessage() error = %v, want nil for an unknown task", err)
	}
}

func TestSettlementWorkerComputeRetryDelay(t *testing.T) {
	t.Parallel()

	worker := newTestSettlementWorker(t, &fakeTaskRepo{}, newFakeAttemptRepo(), &fakeOrderRepo{}, &fakeProcessor{}, &fakeRateLimiter{})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 6, want: 32 * time.Second},
		{attempt: 7, want: 60 * time.Second},
		{attempt: 20, want: 60 * time.Second},
	}
	for _, tc := range cases {
		if got := worker.computeRetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("computeRetryDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func newTestSettlementWorker(
	t *testing.T,
	tasks *fakeTaskRepo,
	attempts *fakeAttemptRepo,
	orders *fakeOrderRepo,
	processor *fakeProcessor,
	limiter *fakeRateLimiter,
) *SettlementWorker {
	t.Helper()

	worker, err := NewSettlementWorker(tasks, attempts, orders, &fakeConsumer{}, processor, limiter, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSettlementWorker() error = %v", err)
	}
	worker.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	worker.randIntn = func(n int) int { return 0 }
	return worker
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	recorded []domain.SettlementAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{}
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.SettlementAttempt) error {
	f.mu.Lock()
	f.recorded = append(f.recorded, *a)
	f.mu.Unlock()
	return nil
}

func (f *fakeAttemptRepo) GetByTaskID(ctx context.Context, taskID string) ([]domain.SettlementAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SettlementAttempt, 0, len(f.recorded))
	for _, a := range f.recorded {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttemptRepo) all() []domain.SettlementAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SettlementAttempt, len(f.recorded))
	copy(out, f.recorded)
	return out
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	scope string
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	f.mu.Lock()
	f.scope = scope
	f.mu.Unlock()
	return nil
}

func (f *fakeRateLimiter) waitedScope() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scope
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }
