package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// sweepBatchSize bounds how many expired rows one sweep pass loads.
const sweepBatchSize = 500

// SweepStats summarizes one expiry sweep pass.
type SweepStats struct {
	Renewed int `json:"renewed"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// SubscriptionService owns the subscription state machine: plan changes,
// refunds and the periodic expiry sweep. It is also the source of truth the
// quota accountant reads plan limits from.
type SubscriptionService interface {
	// GetActiveSubscription returns the user's active subscription,
	// provisioning a free one on first use.
	GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GetPlan(ctx context.Context, planType string) (*model.QuotaPlan, error)
	// UpgradePlan switches to a strictly higher-priced plan, effective immediately.
	UpgradePlan(ctx context.Context, userID, newPlan, paymentMethod string) (*model.Subscription, error)
	// DowngradePlan schedules a strictly lower-priced plan to take effect the
	// day after the current period expires; entitlements are unchanged until then.
	DowngradePlan(ctx context.Context, userID, newPlan string) (*model.Subscription, error)
	// CancelSubscription disables auto-renew and schedules a free plan after expiry.
	CancelSubscription(ctx context.Context, userID string) error
	// RefundAndCancel refunds the unused period pro rata and drops the user to
	// the free plan immediately.
	RefundAndCancel(ctx context.Context, userID, reason string) (*model.RefundResult, error)
	// ProcessExpiredSubscriptions renews or retires every lapsed active row.
	// Each user's transition is its own transaction; failures are counted and
	// do not abort the pass.
	ProcessExpiredSubscriptions(ctx context.Context) (SweepStats, error)
	ListPlanChanges(ctx context.Context, userID string, limit int) ([]*model.PlanChange, error)
}

type subscriptionService struct {
	repo   repository.SubscriptionRepository
	events *pubsub.Events
	logger zerolog.Logger
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(repo repository.SubscriptionRepository, events *pubsub.Events, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:   repo,
		events: events,
		logger: logger.With().Str("service", "SubscriptionService").Logger(),
		now:    time.Now,
	}
}

// GetActiveSubscription returns the active subscription, lazily provisioning a
// free one for first-time users.
func (s *subscriptionService) GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch active subscription")
		return nil, err
	}
	if sub == nil {
		sub = newFreeSubscription(userID, s.now())
		if err := s.repo.CreateSubscription(ctx, sub); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to provision free subscription")
			return nil, err
		}
		s.logger.Info().Str("user_id", userID).Msg("Provisioned free subscription on first use")
	}
	return sub, nil
}

// GetPlan returns a plan's limits.
func (s *subscriptionService) GetPlan(ctx context.Context, planType string) (*model.QuotaPlan, error) {
	plan, err := s.repo.GetPlanByType(ctx, planType)
	if err != nil {
		s.logger.Error().Err(err).Str("plan_type", planType).Msg("Failed to fetch plan")
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planType)
	}
	return plan, nil
}

// UpgradePlan replaces the active row with the new plan, effective immediately.
func (s *subscriptionService) UpgradePlan(ctx context.Context, userID, newPlan, paymentMethod string) (*model.Subscription, error) {
	sub, currentPlan, targetPlan, err := s.resolveTransition(ctx, userID, newPlan)
	if err != nil {
		return nil, err
	}
	if targetPlan.PriceMonthlyCents <= currentPlan.PriceMonthlyCents {
		return nil, fmt.Errorf("%w: %s is not an upgrade from %s", ErrInvalidTransition, newPlan, sub.PlanType)
	}

	now := s.now()
	expiresAt := now.AddDate(0, 1, 0)
	next := &model.Subscription{
		UserID:        userID,
		PlanType:      newPlan,
		Status:        model.SubscriptionStatusActive,
		StartedAt:     now,
		ExpiresAt:     &expiresAt,
		AutoRenew:     true,
		PaymentMethod: paymentMethod,
	}
	change := &model.PlanChange{
		UserID:     userID,
		FromPlan:   sub.PlanType,
		ToPlan:     newPlan,
		ChangeType: model.PlanChangeUpgrade,
	}
	if err := s.repo.ReplaceActiveSubscription(ctx, sub.ID, model.SubscriptionStatusCancelled, next, change); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("plan_type", newPlan).Msg("Failed to upgrade plan")
		return nil, err
	}
	s.events.PublishPlanChange(ctx, change)
	s.logger.Info().Str("user_id", userID).Str("from", sub.PlanType).Str("to", newPlan).Msg("Plan upgraded")
	return next, nil
}

// DowngradePlan defers the cheaper plan to the day after the current expiry.
func (s *subscriptionService) DowngradePlan(ctx context.Context, userID, newPlan string) (*model.Subscription, error) {
	sub, currentPlan, targetPlan, err := s.resolveTransition(ctx, userID, newPlan)
	if err != nil {
		return nil, err
	}
	if targetPlan.PriceMonthlyCents >= currentPlan.PriceMonthlyCents {
		return nil, fmt.Errorf("%w: %s is not a downgrade from %s", ErrInvalidTransition, newPlan, sub.PlanType)
	}
	if sub.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: current %s plan has no expiry to defer to", ErrInvalidTransition, sub.PlanType)
	}

	pending := &model.Subscription{
		UserID:    userID,
		PlanType:  newPlan,
		Status:    model.SubscriptionStatusPending,
		StartedAt: sub.ExpiresAt.AddDate(0, 0, 1),
		AutoRenew: false,
	}
	change := &model.PlanChange{
		UserID:     userID,
		FromPlan:   sub.PlanType,
		ToPlan:     newPlan,
		ChangeType: model.PlanChangeDowngrade,
	}
	if err := s.repo.ScheduleDeferredPlan(ctx, sub.ID, pending, change); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("plan_type", newPlan).Msg("Failed to schedule downgrade")
		return nil, err
	}
	s.events.PublishPlanChange(ctx, change)
	s.logger.Info().Str("user_id", userID).Str("from", sub.PlanType).Str("to", newPlan).Time("effective", pending.StartedAt).Msg("Downgrade scheduled")
	return pending, nil
}

// CancelSubscription schedules a free plan for the day after current expiry.
func (s *subscriptionService) CancelSubscription(ctx context.Context, userID string) error {
	sub, err := s.GetActiveSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub.PlanType == model.PlanFree {
		return fmt.Errorf("%w: already on the free plan", ErrNothingToCancel)
	}
	if sub.ExpiresAt == nil {
		return fmt.Errorf("%w: current %s plan has no expiry to defer to", ErrInvalidTransition, sub.PlanType)
	}

	pending := &model.Subscription{
		UserID:    userID,
		PlanType:  model.PlanFree,
		Status:    model.SubscriptionStatusPending,
		StartedAt: sub.ExpiresAt.AddDate(0, 0, 1),
		AutoRenew: false,
	}
	change := &model.PlanChange{
		UserID:     userID,
		FromPlan:   sub.PlanType,
		ToPlan:     model.PlanFree,
		ChangeType: model.PlanChangeCancel,
	}
	if err := s.repo.ScheduleDeferredPlan(ctx, sub.ID, pending, change); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to schedule cancellation")
		return err
	}
	s.events.PublishPlanChange(ctx, change)
	s.logger.Info().Str("user_id", userID).Str("plan_type", sub.PlanType).Msg("Cancellation scheduled")
	return nil
}

// RefundAndCancel refunds the unused period (priceMonthly * remainingDays / 30,
// fixed 30-day month) and activates a free plan immediately.
func (s *subscriptionService) RefundAndCancel(ctx context.Context, userID, reason string) (*model.RefundResult, error) {
	sub, err := s.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.PlanType == model.PlanFree {
		return nil, fmt.Errorf("%w: already on the free plan", ErrNothingToCancel)
	}
	plan, err := s.GetPlan(ctx, sub.PlanType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	remainingDays := 0
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		remainingDays = int(math.Ceil(sub.ExpiresAt.Sub(now).Hours() / 24))
	}
	refundCents := plan.PriceMonthlyCents * remainingDays / 30

	change := &model.PlanChange{
		UserID:      userID,
		FromPlan:    sub.PlanType,
		ToPlan:      model.PlanFree,
		ChangeType:  model.PlanChangeRefund,
		Reason:      reason,
		RefundCents: refundCents,
	}
	if err := s.repo.ReplaceActiveSubscription(ctx, sub.ID, model.SubscriptionStatusRefunded, newFreeSubscription(userID, now), change); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to refund and cancel")
		return nil, err
	}
	s.events.PublishPlanChange(ctx, change)
	s.logger.Info().Str("user_id", userID).Str("plan_type", sub.PlanType).Int("refund_cents", refundCents).Msg("Subscription refunded")
	return &model.RefundResult{
		RefundCents:   refundCents,
		RemainingDays: remainingDays,
		FromPlan:      sub.PlanType,
	}, nil
}

// ProcessExpiredSubscriptions is the periodic sweep: silent renewal for
// auto-renewing rows, expiry and pending-plan promotion for the rest.
// Running two sweeps concurrently can double-extend a renewal in a narrow
// race; deployments should run a single scheduler instance.
func (s *subscriptionService) ProcessExpiredSubscriptions(ctx context.Context) (SweepStats, error) {
	now := s.now()
	var stats SweepStats

	subs, err := s.repo.ListExpiredActive(ctx, now, sweepBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list expired subscriptions")
		return stats, err
	}

	for _, sub := range subs {
		if sub.AutoRenew {
			// Payment collection is the billing collaborator's responsibility.
			newExpiry := sub.ExpiresAt.AddDate(0, 0, 30)
			if err := s.repo.RenewSubscription(ctx, sub.ID, newExpiry); err != nil {
				s.logger.Error().Err(err).Str("user_id", sub.UserID).Str("subscription_id", sub.ID).Msg("Failed to renew subscription")
				stats.Failed++
				continue
			}
			stats.Renewed++
			continue
		}

		fallback := newFreeSubscription(sub.UserID, now)
		promoted, err := s.repo.ExpireAndPromote(ctx, sub, now, now.AddDate(0, 0, 30), fallback)
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", sub.UserID).Str("subscription_id", sub.ID).Msg("Failed to expire subscription")
			stats.Failed++
			continue
		}
		if promoted != "" {
			change := &model.PlanChange{
				UserID:     sub.UserID,
				FromPlan:   sub.PlanType,
				ToPlan:     promoted,
				ChangeType: model.PlanChangeExpiry,
			}
			s.events.PublishPlanChange(ctx, change)
			stats.Expired++
		}
	}

	s.logger.Info().Int("renewed", stats.Renewed).Int("expired", stats.Expired).Int("failed", stats.Failed).Msg("Expiry sweep completed")
	return stats, nil
}

// ListPlanChanges returns the user's plan transition history.
func (s *subscriptionService) ListPlanChanges(ctx context.Context, userID string, limit int) ([]*model.PlanChange, error) {
	changes, err := s.repo.ListPlanChanges(ctx, userID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to list plan changes")
		return nil, err
	}
	return changes, nil
}

// resolveTransition loads the current subscription and both plans' reference data.
func (s *subscriptionService) resolveTransition(ctx context.Context, userID, newPlan string) (*model.Subscription, *model.QuotaPlan, *model.QuotaPlan, error) {
	sub, err := s.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	targetPlan, err := s.GetPlan(ctx, newPlan)
	if err != nil {
		return nil, nil, nil, err
	}
	currentPlan, err := s.GetPlan(ctx, sub.PlanType)
	if err != nil {
		return nil, nil, nil, err
	}
	return sub, currentPlan, targetPlan, nil
}
