package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/payment"
	"github.com/groupcart/settlement-engine/internal/queue"
	"github.com/groupcart/settlement-engine/internal/ratelimit"
	"github.com/groupcart/settlement-engine/internal/repository"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
)

// SettlementWorker consumes settlement task queues and executes the
// capture/refund call against the payment processor, with bounded
// exponential retry for transient failures.
type SettlementWorker struct {
	tasks       repository.TaskRepository
	attempts    repository.AttemptRepository
	orders      repository.OrderRepository
	consumer    queue.Consumer
	processor   payment.Processor
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewSettlementWorker(
	tasks repository.TaskRepository,
	attempts repository.AttemptRepository,
	orders repository.OrderRepository,
	consumer queue.Consumer,
	processor payment.Processor,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*SettlementWorker, error) {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SettlementWorker{
		tasks:       tasks,
		attempts:    attempts,
		orders:      orders,
		consumer:    consumer,
		processor:   processor,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *SettlementWorker) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the action queues and processes task messages until context
// cancellation.
func (s *SettlementWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("settlement worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("settlement worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("settlement worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *SettlementWorker) processMessage(ctx context.Context, msg queue.TaskMessage) error {
	task, err := s.tasks.LockForProcessing(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("settlement task not found during lock, skipping",
				zap.String("taskId", msg.TaskID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock settlement task: %w", err)
	}

	// Nil means terminal or already in flight; ack and skip.
	if task == nil {
		return nil
	}

	actionName := strings.ToLower(task.Action.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(actionName)
		defer s.metrics.DecWorkerInFlight(actionName)
	}

	if err := s.rateLimiter.Wait(ctx, actionName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := task.AttemptCount + 1

	order, err := s.orders.GetByID(ctx, task.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order for settlement: %w", err)
	}
	if order.PaymentReference == nil || strings.TrimSpace(*order.PaymentReference) == "" {
		missingRef := fmt.Errorf("order %s has no payment reference", order.ID)
		if err := s.recordAttempt(ctx, task.ID, attemptNumber, nil, missingRef); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		if err := s.tasks.MarkFailed(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to mark task failed: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncSettlementFailed(actionName, "missing_reference")
		}
		return nil
	}

	callStart := s.now()
	resp, callErr := s.settle(ctx, task.Action, *order.PaymentReference)
	if s.metrics != nil {
		s.metrics.ObserveSettlementCallDuration(actionName, s.now().Sub(callStart))
	}

	if err := s.recordAttempt(ctx, task.ID, attemptNumber, resp, callErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if callErr == nil {
		if err := s.tasks.MarkSucceeded(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to mark task succeeded: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncOrderSettled(actionName)
		}
		return nil
	}

	isTransient := payment.IsTransient(callErr)
	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultTaskMaxRetries
	}

	if isTransient && attemptNumber < maxRetries {
		nextRetryAt := s.now().Add(s.computeRetryDelay(attemptNumber))
		if err := s.tasks.ScheduleRetry(ctx, task.ID, nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule task retry: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncSettlementRetryScheduled(actionName)
		}
		return nil
	}

	if err := s.tasks.MarkFailed(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	if s.metrics != nil {
		reason := "permanent_error"
		if isTransient {
			reason = "retry_exhausted"
		}
		s.metrics.IncSettlementFailed(actionName, reason)
	}

	return nil
}

func (s *SettlementWorker) settle(ctx context.Context, action domain.SettlementAction, reference string) (*payment.ProcessorResponse, error) {
	switch action {
	case domain.ActionCapture:
		return s.processor.Capture(ctx, reference)
	case domain.ActionRefund:
		return s.processor.Refund(ctx, reference)
	default:
		return nil, fmt.Errorf("%w: unknown settlement action %q", domain.ErrValidation, action)
	}
}

func (s *SettlementWorker) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *SettlementWorker) recordAttempt(
	ctx context.Context,
	taskID string,
	attemptNumber int,
	resp *payment.ProcessorResponse,
	callErr error,
) error {
	var statusCode *int
	var attemptErr *string

	if resp != nil && resp.StatusCode > 0 {
		value := resp.StatusCode
		statusCode = &value
	}

	if callErr != nil {
		value := callErr.Error()
		attemptErr = &value

		var processorErr *payment.ProcessorError
		if errors.As(callErr, &processorErr) && processorErr.StatusCode > 0 && statusCode == nil {
			value := processorErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.SettlementAttempt{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		Error:         attemptErr,
		CreatedAt:     s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}
