package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/groupcart/settlement-engine/internal/domain"
	"github.com/groupcart/settlement-engine/internal/moderation"
	"github.com/groupcart/settlement-engine/internal/notify"
	"github.com/groupcart/settlement-engine/internal/observability"
	"github.com/groupcart/settlement-engine/internal/repository"
)

const defaultActiveErrandLimit = 3

// ErrandService drives the errand lifecycle: open for applications,
// acceptance with sibling rejection, dual-confirmation completion, and
// at-most-once payment release as helper credit.
type ErrandService struct {
	errands      repository.ErrandRepository
	applications repository.ApplicationRepository
	ratings      repository.RatingRepository
	credits      *CreditService
	suspensions  moderation.SuspensionChecker
	notifier     notify.Notifier
	logger       *zap.Logger
	metrics      *observability.Metrics
	activeLimit  int
}

func NewErrandService(
	errands repository.ErrandRepository,
	applications repository.ApplicationRepository,
	ratings repository.RatingRepository,
	credits *CreditService,
	suspensions moderation.SuspensionChecker,
	notifier notify.Notifier,
	activeLimit int,
	logger *zap.Logger,
) (*ErrandService, error) {
	if errands == nil {
		return nil, fmt.Errorf("errand repository is required")
	}
	if applications == nil {
		return nil, fmt.Errorf("application repository is required")
	}
	if ratings == nil {
		return nil, fmt.Errorf("rating repository is required")
	}
	if credits == nil {
		return nil, fmt.Errorf("credit service is required")
	}
	if suspensions == nil {
		suspensions = moderation.AllowAll{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if activeLimit <= 0 {
		activeLimit = defaultActiveErrandLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ErrandService{
		errands:      errands,
		applications: applications,
		ratings:      ratings,
		credits:      credits,
		suspensions:  suspensions,
		notifier:     notifier,
		logger:       logger,
		activeLimit:  activeLimit,
	}, nil
}

func (s *ErrandService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *ErrandService) Create(ctx context.Context, errand *domain.Errand) (*domain.Errand, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if errand == nil {
		return nil, fmt.Errorf("%w: errand is required", domain.ErrValidation)
	}

	suspended, err := s.suspensions.IsSuspended(ctx, moderation.EntityUser, errand.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("suspension check failed: %w", err)
	}
	if suspended {
		return nil, fmt.Errorf("%w: requester %s is suspended", domain.ErrSuspended, errand.RequesterID)
	}

	errand.ID = strings.TrimSpace(errand.ID)
	if errand.ID == "" {
		errand.ID = uuid.NewString()
	}
	errand.Status = domain.ErrandOpen
	errand.AssignedHelperID = nil
	errand.RequesterConfirmed = false
	errand.HelperConfirmed = false
	errand.PaymentReleased = false

	if err := errand.Validate(); err != nil {
		return nil, err
	}
	if err := s.errands.Create(ctx, errand); err != nil {
		return nil, err
	}

	return errand, nil
}

func (s *ErrandService) GetByID(ctx context.Context, id string) (*domain.Errand, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: errand id is required", domain.ErrValidation)
	}
	return s.errands.GetByID(ctx, strings.TrimSpace(id))
}

func (s *ErrandService) ListApplications(ctx context.Context, errandID string) ([]domain.Application, error) {
	if strings.TrimSpace(errandID) == "" {
		return nil, fmt.Errorf("%w: errand id is required", domain.ErrValidation)
	}
	return s.applications.ListByErrand(ctx, strings.TrimSpace(errandID))
}

// Apply records a helper's offer for an OPEN errand. The business rules are
// checked in order: errand accepting, no prior live application, helper
// under the active-errand limit.
func (s *ErrandService) Apply(
	ctx context.Context,
	errandID, helperID string,
	offerAmount *int64,
	message string,
) (*domain.Application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	helperID = strings.TrimSpace(helperID)
	if helperID == "" {
		return nil, fmt.Errorf("%w: helper id is required", domain.ErrValidation)
	}

	errand, err := s.GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.Status != domain.ErrandOpen || errand.AssignedHelperID != nil {
		return nil, fmt.Errorf("%w: errand %s is not open for applications", domain.ErrNotAcceptingApplications, errand.ID)
	}
	if errand.RequesterID == helperID {
		return nil, fmt.Errorf("%w: requester cannot apply to own errand", domain.ErrValidation)
	}

	suspended, err := s.suspensions.IsSuspended(ctx, moderation.EntityUser, helperID)
	if err != nil {
		return nil, fmt.Errorf("suspension check failed: %w", err)
	}
	if suspended {
		return nil, fmt.Errorf("%w: helper %s is suspended", domain.ErrSuspended, helperID)
	}

	applied, err := s.applications.HasNonRejected(ctx, errand.ID, helperID)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, fmt.Errorf("%w: helper %s already applied to errand %s", domain.ErrAlreadyApplied, helperID, errand.ID)
	}

	active, err := s.errands.CountActiveByHelper(ctx, helperID)
	if err != nil {
		return nil, err
	}
	if active >= int64(s.activeLimit) {
		return nil, fmt.Errorf("%w: helper %s has %d active errands (limit %d)",
			domain.ErrActiveErrandLimitExceeded, helperID, active, s.activeLimit)
	}

	application := &domain.Application{
		ID:          uuid.NewString(),
		ErrandID:    errand.ID,
		HelperID:    helperID,
		OfferAmount: offerAmount,
		Message:     strings.TrimSpace(message),
		Status:      domain.ApplicationPending,
	}
	if err := application.Validate(); err != nil {
		return nil, err
	}
	if err := s.applications.Create(ctx, application); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: helper %s already applied to errand %s", domain.ErrAlreadyApplied, helperID, errand.ID)
		}
		return nil, err
	}

	s.notifyUser(ctx, errand.RequesterID, notify.TypeApplicationState, "New application for your errand", map[string]any{
		"errandId":      errand.ID,
		"applicationId": application.ID,
	})

	return application, nil
}

// Accept assigns the applying helper and rejects every sibling application
// in one atomic unit. Only the errand's requester may accept, and the
// applicant's active-errand limit is re-checked here because applications
// accumulate while the helper takes on other work. A follow-up
// reconciliation pass rejects any PENDING sibling the atomic path could
// not reach.
func (s *ErrandService) Accept(ctx context.Context, errandID, applicationID, requesterID string) (*domain.Errand, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(applicationID) == "" {
		return nil, fmt.Errorf("%w: application id is required", domain.ErrValidation)
	}

	application, err := s.applications.GetByID(ctx, strings.TrimSpace(applicationID))
	if err != nil {
		return nil, err
	}
	if application.ErrandID != strings.TrimSpace(errandID) {
		return nil, fmt.Errorf("%w: application %s does not belong to errand %s", domain.ErrValidation, application.ID, errandID)
	}

	current, err := s.errands.GetByID(ctx, application.ErrandID)
	if err != nil {
		return nil, err
	}
	if current.RequesterID != strings.TrimSpace(requesterID) {
		return nil, fmt.Errorf("%w: only the requester can accept an application", domain.ErrValidation)
	}

	active, err := s.errands.CountActiveByHelper(ctx, application.HelperID)
	if err != nil {
		return nil, err
	}
	if active >= int64(s.activeLimit) {
		return nil, fmt.Errorf("%w: helper %s has %d active errands (limit %d)",
			domain.ErrActiveErrandLimitExceeded, application.HelperID, active, s.activeLimit)
	}

	if err := s.errands.Accept(ctx, application.ErrandID, application.ID, application.HelperID); err != nil {
		return nil, err
	}

	if rejected, err := s.errands.RejectStrayPending(ctx, application.ErrandID); err != nil {
		s.logger.Error("stray application reconciliation failed",
			zap.String("errandId", application.ErrandID),
			zap.Error(err),
		)
	} else if rejected > 0 {
		s.logger.Info("rejected stray pending applications",
			zap.String("errandId", application.ErrandID),
			zap.Int64("count", rejected),
		)
	}

	errand, err := s.errands.GetByID(ctx, application.ErrandID)
	if err != nil {
		return nil, err
	}

	s.notifyUser(ctx, application.HelperID, notify.TypeErrandAssigned, "Your application was accepted", map[string]any{
		"errandId":      errand.ID,
		"applicationId": application.ID,
	})

	return errand, nil
}

// ConfirmCompletion sets the calling party's confirmation flag. When both
// parties have confirmed the errand completes and payment release fires.
func (s *ErrandService) ConfirmCompletion(ctx context.Context, errandID, userID string, isRequester bool) (*domain.Errand, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	errand, err := s.GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if isRequester {
		if errand.RequesterID != userID {
			return nil, fmt.Errorf("%w: user %s is not the requester of errand %s", domain.ErrValidation, userID, errand.ID)
		}
	} else {
		if errand.AssignedHelperID == nil || *errand.AssignedHelperID != userID {
			return nil, fmt.Errorf("%w: user %s is not the assigned helper of errand %s", domain.ErrValidation, userID, errand.ID)
		}
	}

	result, err := s.errands.Confirm(ctx, errand.ID, isRequester)
	if err != nil {
		return nil, err
	}
	errand = result.Errand

	if result.Completed {
		if s.metrics != nil {
			s.metrics.IncErrandCompleted()
		}
		if err := s.ReleasePayment(ctx, errand.ID); err != nil {
			s.logger.Error("payment release failed after completion",
				zap.String("errandId", errand.ID),
				zap.Error(err),
			)
		}
		s.notifyUser(ctx, errand.RequesterID, notify.TypeErrandCompleted, "Errand completed", map[string]any{
			"errandId": errand.ID,
		})
		if errand.AssignedHelperID != nil {
			s.notifyUser(ctx, *errand.AssignedHelperID, notify.TypeErrandCompleted, "Errand completed", map[string]any{
				"errandId": errand.ID,
			})
		}
	}

	return errand, nil
}

// ReleasePayment issues the helper's budget as an errand_completion credit,
// at most once per errand. A second caller observes the flipped guard and
// no-ops, so a retry sweep can call this freely.
func (s *ErrandService) ReleasePayment(ctx context.Context, errandID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	errand, err := s.GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.Status != domain.ErrandCompleted {
		return fmt.Errorf("%w: errand %s is %s, payment requires COMPLETED", domain.ErrInvalidTransition, errand.ID, errand.Status)
	}
	if errand.AssignedHelperID == nil {
		return fmt.Errorf("%w: errand %s has no assigned helper", domain.ErrConflict, errand.ID)
	}

	released, err := s.errands.MarkPaymentReleased(ctx, errand.ID)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}

	helperID := *errand.AssignedHelperID
	if _, err := s.credits.Issue(ctx, helperID, errand.Budget, domain.SourceErrandCompletion, nil); err != nil {
		// The guard is flipped but the credit is missing; surface loudly so
		// the ledger can be reconciled by hand.
		s.logger.Error("credit issuance failed after payment release guard",
			zap.String("errandId", errand.ID),
			zap.String("helperId", helperID),
			zap.Int64("budget", errand.Budget),
			zap.Error(err),
		)
		return fmt.Errorf("failed to issue completion credit: %w", err)
	}

	s.notifyUser(ctx, helperID, notify.TypePaymentReleased, "Errand payment released", map[string]any{
		"errandId": errand.ID,
		"amount":   errand.Budget,
	})

	return nil
}

func (s *ErrandService) Cancel(ctx context.Context, errandID string) (*domain.Errand, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(errandID) == "" {
		return nil, fmt.Errorf("%w: errand id is required", domain.ErrValidation)
	}

	ok, err := s.errands.Cancel(ctx, strings.TrimSpace(errandID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: errand %s is already terminal", domain.ErrInvalidTransition, errandID)
	}

	return s.errands.GetByID(ctx, strings.TrimSpace(errandID))
}

// RateHelper records the requester's rating after completion. A repeat
// rating by the same requester updates in place.
func (s *ErrandService) RateHelper(ctx context.Context, errandID, raterID string, rating int, comment string) (*domain.HelperRating, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raterID = strings.TrimSpace(raterID)
	if raterID == "" {
		return nil, fmt.Errorf("%w: rater id is required", domain.ErrValidation)
	}

	errand, err := s.GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.Status != domain.ErrandCompleted {
		return nil, fmt.Errorf("%w: errand %s is %s, rating requires COMPLETED", domain.ErrInvalidTransition, errand.ID, errand.Status)
	}
	if errand.RequesterID != raterID {
		return nil, fmt.Errorf("%w: only the requester can rate the helper", domain.ErrValidation)
	}
	if errand.AssignedHelperID == nil {
		return nil, fmt.Errorf("%w: errand %s has no assigned helper", domain.ErrConflict, errand.ID)
	}

	helperRating := &domain.HelperRating{
		ID:       uuid.NewString(),
		ErrandID: errand.ID,
		RaterID:  raterID,
		HelperID: *errand.AssignedHelperID,
		Rating:   rating,
		Comment:  strings.TrimSpace(comment),
	}
	if err := helperRating.Validate(); err != nil {
		return nil, err
	}
	if err := s.ratings.Upsert(ctx, helperRating); err != nil {
		return nil, err
	}

	return s.ratings.GetByErrandAndRater(ctx, errand.ID, raterID)
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (s *ErrandService) notifyUser(ctx context.Context, userID, notifType, message string, data map[string]any) {
	n := notify.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   message,
		Message: message,
		Data:    data,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("errand notification dispatch failed",
			zap.String("userId", userID),
			zap.String("type", notifType),
			zap.Error(err),
		)
	}
}
