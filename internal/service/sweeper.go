package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/repository"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepLimit    = 100
)

// batchEvaluator decides a batch; satisfied by BatchService.
type batchEvaluator interface {
	Evaluate(ctx context.Context, batchID string) (*domain.RegionalBatch, error)
}

// DeadlineSweeper periodically evaluates ACTIVE batches whose deadline has
// passed. Evaluation is idempotent so overlap with user-triggered evaluation
// is harmless.
type DeadlineSweeper struct {
	batches   repository.BatchRepository
	evaluator batchEvaluator
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewDeadlineSweeper(
	batches repository.BatchRepository,
	evaluator batchEvaluator,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*DeadlineSweeper, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("batch evaluator is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeadlineSweeper{
		batches:   batches,
		evaluator: evaluator,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *DeadlineSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("deadline sweeper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("deadline sweeper sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *DeadlineSweeper) sweep(ctx context.Context) error {
	expired, err := s.batches.ListExpiredActive(ctx, s.now(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to list expired batches: %w", err)
	}

	for i := range expired {
		batch := expired[i]
		if _, err := s.evaluator.Evaluate(ctx, batch.ID); err != nil {
			s.logger.Error("batch evaluation failed during sweep",
				zap.String("batchId", batch.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
