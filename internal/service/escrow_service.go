package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/queue"
	"github.com/groupcart/settlement-engine/internal/repository"
)

const defaultTaskMaxRetries = 5

// OrderFailure records a per-order error from a batch-wide escrow sweep.
type OrderFailure struct {
	OrderID string
	Err     string
}

// SettlementResult summarizes a batch-wide release or refund. Partial
// success is expected: failed orders remain HELD and are retried per-order
// on the next invocation.
type SettlementResult struct {
	BatchID string
	Settled int
	Skipped int
	Failed  []OrderFailure
}

// EscrowService owns the per-order escrow ledger. Status transitions commit
// first; the external capture/refund call is queued as a settlement task and
// retried out of band, never rolling the transition back.
type EscrowService struct {
	orders     repository.OrderRepository
	tasks      repository.TaskRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	maxRetries int
	now        func() time.Time
}

func NewEscrowService(
	orders repository.OrderRepository,
	tasks repository.TaskRepository,
	publisher queue.Publisher,
	maxRetries int,
	logger *zap.Logger,
) (*EscrowService, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if maxRetries <= 0 {
		maxRetries = defaultTaskMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EscrowService{
		orders:     orders,
		tasks:      tasks,
		publisher:  publisher,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}, nil
}

func (s *EscrowService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Hold moves a freshly authorized order into escrow. The order must carry
// a payment authorization reference; there is nothing to capture or refund
// later without one. Re-holding an already HELD order is a no-op.
func (s *EscrowService) Hold(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentReference == nil || strings.TrimSpace(*order.PaymentReference) == "" {
		return fmt.Errorf("%w: order %s has no payment reference", domain.ErrAuthorizationRequired, orderID)
	}

	ok, err := s.orders.Transition(ctx, orderID, domain.EscrowPending, domain.EscrowHeld)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.EscrowStatus == domain.EscrowHeld {
		return nil
	}
	return fmt.Errorf("%w: order %s is %s, cannot hold", domain.ErrInvalidTransition, orderID, order.EscrowStatus)
}

// Release settles every HELD order of the batch as RELEASED and queues a
// capture task per order. Already-settled orders are skipped, which makes
// re-fired batch triggers harmless.
func (s *EscrowService) Release(ctx context.Context, batchID string) (*SettlementResult, error) {
	return s.settle(ctx, batchID, domain.EscrowReleased, domain.ActionCapture)
}

// Refund settles every HELD order of the batch as REFUNDED and queues a
// refund task per order.
func (s *EscrowService) Refund(ctx context.Context, batchID string) (*SettlementResult, error) {
	return s.settle(ctx, batchID, domain.EscrowRefunded, domain.ActionRefund)
}

func (s *EscrowService) StatusOf(ctx context.Context, orderID string) (domain.EscrowStatus, error) {
	if strings.TrimSpace(orderID) == "" {
		return "", fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	order, err := s.orders.GetByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return "", err
	}
	return order.EscrowStatus, nil
}

func (s *EscrowService) TotalHeld(ctx context.Context, batchID string) (int64, error) {
	if strings.TrimSpace(batchID) == "" {
		return 0, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.orders.TotalHeldByBatch(ctx, strings.TrimSpace(batchID))
}

func (s *EscrowService) settle(
	ctx context.Context,
	batchID string,
	to domain.EscrowStatus,
	action domain.SettlementAction,
) (*SettlementResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	held, err := s.orders.ListByBatchAndStatus(ctx, batchID, domain.EscrowHeld)
	if err != nil {
		return nil, fmt.Errorf("failed to list held orders: %w", err)
	}

	result := &SettlementResult{BatchID: batchID}
	for i := range held {
		order := &held[i]

		ok, err := s.orders.Transition(ctx, order.ID, domain.EscrowHeld, to)
		if err != nil {
			result.Failed = append(result.Failed, OrderFailure{OrderID: order.ID, Err: err.Error()})
			continue
		}
		if !ok {
			// Another trigger settled this order between list and update.
			result.Skipped++
			continue
		}

		result.Settled++
		if err := s.enqueueTask(ctx, order, action); err != nil {
			s.logger.Error("failed to enqueue settlement task",
				zap.String("orderId", order.ID),
				zap.String("action", action.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, OrderFailure{OrderID: order.ID, Err: err.Error()})
		}
	}

	return result, nil
}

func (s *EscrowService) enqueueTask(ctx context.Context, order *domain.Order, action domain.SettlementAction) error {
	task, err := s.tasks.FindOpenByOrderAndAction(ctx, order.ID, action)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if task == nil {
		task = &domain.SettlementTask{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			BatchID:    order.BatchID,
			Action:     action,
			Status:     domain.TaskPending,
			MaxRetries: s.maxRetries,
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("failed to create settlement task: %w", err)
		}
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	msg := queue.TaskMessage{
		TaskID:        task.ID,
		OrderID:       order.ID,
		CorrelationID: correlationID,
		Action:        action,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(action), msg); err != nil {
		// Leave the task visible to the retry scanner rather than losing it.
		if retryErr := s.tasks.ScheduleRetry(ctx, task.ID, s.now()); retryErr != nil {
			return fmt.Errorf("publish failed: %w (schedule retry failed: %v)", err, retryErr)
		}
		return fmt.Errorf("publish failed, task scheduled for retry: %w", err)
	}

	return nil
}
