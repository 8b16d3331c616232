package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/moderation"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/payment"
	"github.com/groupcart/settlement-engine/internal/repository"
)

// BatchService drives the regional batch state machine. Terminal transitions
// follow the transition-observer rule: only the caller whose conditional
// update lands fires the escrow side effects, so re-fired triggers cannot
// duplicate a release or refund.
type BatchService struct {
	batches     repository.BatchRepository
	orders      repository.OrderRepository
	escrow      *EscrowService
	processor   payment.Processor
	suspensions moderation.SuspensionChecker
	notifier    notify.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewBatchService(
	batches repository.BatchRepository,
	orders repository.OrderRepository,
	escrow *EscrowService,
	processor payment.Processor,
	suspensions moderation.SuspensionChecker,
	notifier notify.Notifier,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow service is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("payment processor is required")
	}
	if suspensions == nil {
		suspensions = moderation.AllowAll{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches:     batches,
		orders:      orders,
		escrow:      escrow,
		processor:   processor,
		suspensions: suspensions,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *BatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *BatchService) Create(ctx context.Context, batch *domain.RegionalBatch) (*domain.RegionalBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: batch is required", domain.ErrValidation)
	}

	batch.ID = strings.TrimSpace(batch.ID)
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.Status = domain.BatchDraft
	batch.CurrentQuantity = 0

	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	return batch, nil
}

func (s *BatchService) GetByID(ctx context.Context, id string) (*domain.RegionalBatch, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.batches.GetByID(ctx, strings.TrimSpace(id))
}

// Activate opens a DRAFT batch for orders. Activating an already ACTIVE
// batch is a no-op.
func (s *BatchService) Activate(ctx context.Context, id string) (*domain.RegionalBatch, error) {
	batch, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	suspended, err := s.suspensions.IsSuspended(ctx, moderation.EntityUser, batch.VendorID)
	if err != nil {
		return nil, fmt.Errorf("suspension check failed: %w", err)
	}
	if suspended {
		return nil, fmt.Errorf("%w: vendor %s is suspended", domain.ErrSuspended, batch.VendorID)
	}

	ok, err := s.batches.Transition(ctx, batch.ID, domain.BatchDraft, domain.BatchActive)
	if err != nil {
		return nil, err
	}
	if !ok {
		if batch.Status == domain.BatchActive {
			return batch, nil
		}
		return nil, fmt.Errorf("%w: batch %s is %s, cannot activate", domain.ErrInvalidTransition, batch.ID, batch.Status)
	}

	batch.Status = domain.BatchActive
	return batch, nil
}

// Join places a buyer's order on an ACTIVE batch: reserve quantity, authorize
// payment, then hold the order in escrow. The quantity reservation is backed
// out if authorization or order creation fails.
func (s *BatchService) Join(ctx context.Context, batchID, buyerID string, quantity int) (*domain.Order, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer id is required", domain.ErrValidation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}

	batch, err := s.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchActive {
		return nil, fmt.Errorf("%w: batch %s is %s, not accepting orders", domain.ErrConflict, batch.ID, batch.Status)
	}
	if !batch.Deadline.After(s.now()) {
		return nil, fmt.Errorf("%w: batch %s deadline has passed", domain.ErrConflict, batch.ID)
	}

	suspended, err := s.suspensions.IsSuspended(ctx, moderation.EntityListing, batch.ListingID)
	if err != nil {
		return nil, fmt.Errorf("suspension check failed: %w", err)
	}
	if suspended {
		return nil, fmt.Errorf("%w: listing %s is suspended", domain.ErrSuspended, batch.ListingID)
	}

	ok, err := s.batches.AddQuantity(ctx, batch.ID, quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: batch %s closed before the order landed", domain.ErrConflict, batch.ID)
	}

	amount := batch.UnitPrice * int64(quantity)
	reference, err := s.processor.Authorize(ctx, amount, buyerID)
	if err != nil {
		s.releaseQuantity(ctx, batch.ID, quantity)
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthorizationRequired, err)
	}

	order := &domain.Order{
		ID:               uuid.NewString(),
		BatchID:          batch.ID,
		BuyerID:          strings.TrimSpace(buyerID),
		Quantity:         quantity,
		Amount:           amount,
		EscrowStatus:     domain.EscrowPending,
		PaymentReference: &reference,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseQuantity(ctx, batch.ID, quantity)
		return nil, err
	}

	if err := s.escrow.Hold(ctx, order.ID); err != nil {
		return nil, err
	}
	order.EscrowStatus = domain.EscrowHeld

	return order, nil
}

// Evaluate decides an ACTIVE batch: minimum reached means SUCCESSFUL with a
// release, expired deadline means FAILED with a refund. Safe to call from
// any trigger at any time; only the first observer of a terminal transition
// fires side effects.
func (s *BatchService) Evaluate(ctx context.Context, batchID string) (*domain.RegionalBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	batch, err := s.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchActive {
		return batch, nil
	}

	var outcome domain.BatchStatus
	switch {
	case batch.ReachedMinimum():
		outcome = domain.BatchSuccessful
	case !batch.Deadline.After(s.now()):
		outcome = domain.BatchFailed
	default:
		return batch, nil
	}

	ok, err := s.batches.Transition(ctx, batch.ID, domain.BatchActive, outcome)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another evaluator won the transition; its side effects are in flight.
		return s.batches.GetByID(ctx, batch.ID)
	}

	batch.Status = outcome
	if s.metrics != nil {
		s.metrics.IncBatchTransition(strings.ToLower(outcome.String()))
	}

	if outcome == domain.BatchSuccessful {
		if _, err := s.escrow.Release(ctx, batch.ID); err != nil {
			s.logger.Error("escrow release failed after batch success",
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
		}
		s.notifyBatchOutcome(ctx, batch, notify.TypeBatchSuccessful, "Group buy succeeded")
	} else {
		if _, err := s.escrow.Refund(ctx, batch.ID); err != nil {
			s.logger.Error("escrow refund failed after batch failure",
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
		}
		s.notifyBatchOutcome(ctx, batch, notify.TypeBatchFailed, "Group buy did not reach its minimum")
	}

	return batch, nil
}

// Cancel moves a non-terminal batch to CANCELLED and refunds every held
// order.
func (s *BatchService) Cancel(ctx context.Context, batchID string) (*domain.RegionalBatch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	batch, err := s.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: batch %s is already %s", domain.ErrInvalidTransition, batch.ID, batch.Status)
	}

	ok, err := s.batches.Transition(ctx, batch.ID, batch.Status, domain.BatchCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: batch %s changed state during cancellation", domain.ErrConflict, batch.ID)
	}

	batch.Status = domain.BatchCancelled
	if s.metrics != nil {
		s.metrics.IncBatchTransition(strings.ToLower(domain.BatchCancelled.String()))
	}

	if _, err := s.escrow.Refund(ctx, batch.ID); err != nil {
		s.logger.Error("escrow refund failed after batch cancellation",
			zap.String("batchId", batch.ID),
			zap.Error(err),
		)
	}
	s.notifyBatchOutcome(ctx, batch, notify.TypeBatchCancelled, "Group buy was cancelled")

	return batch, nil
}

func (s *BatchService) releaseQuantity(ctx context.Context, batchID string, quantity int) {
	if _, err := s.batches.AddQuantity(ctx, batchID, -quantity); err != nil {
		s.logger.Error("failed to release reserved batch quantity",
			zap.String("batchId", batchID),
			zap.Int("quantity", quantity),
			zap.Error(err),
		)
	}
}

func (s *BatchService) notifyBatchOutcome(ctx context.Context, batch *domain.RegionalBatch, notifType, message string) {
	data := map[string]any{
		"batchId": batch.ID,
		"status":  batch.Status.String(),
	}

	recipients := []string{batch.VendorID}
	buyers, err := s.orders.DistinctBuyersByBatch(ctx, batch.ID)
	if err != nil {
		s.logger.Error("failed to list batch buyers for notification",
			zap.String("batchId", batch.ID),
			zap.Error(err),
		)
	} else {
		recipients = append(recipients, buyers...)
	}

	for _, userID := range recipients {
		n := notify.Notification{
			UserID:  userID,
			Type:    notifType,
			Title:   message,
			Message: message,
			Data:    data,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("batch notification dispatch failed",
				zap.String("batchId", batch.ID),
				zap.String("userId", userID),
				zap.Error(err),
			)
		}
	}
}
