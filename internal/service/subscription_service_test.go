package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newSubscriptionServiceForTest(repo *MockSubscriptionRepo, now time.Time) *subscriptionService {
	svc := NewSubscriptionService(repo, nil, zerolog.Nop()).(*subscriptionService)
	svc.now = func() time.Time { return now }
	return svc
}

func proPlan() *model.QuotaPlan {
	return &model.QuotaPlan{PlanType: model.PlanPro, PriceMonthlyCents: 2000}
}

func maxPlan() *model.QuotaPlan {
	return &model.QuotaPlan{PlanType: model.PlanMax, PriceMonthlyCents: 5000}
}

func zeroPlan() *model.QuotaPlan {
	return &model.QuotaPlan{PlanType: model.PlanFree, PriceMonthlyCents: 0}
}

func TestUpgradePlanRejectsCheaperPlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanPro), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanFree).Return(zeroPlan(), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)

	_, err := svc.UpgradePlan(context.Background(), "user-1", model.PlanFree, "card")

	assert.ErrorIs(t, err, ErrInvalidTransition)
	repo.AssertNotCalled(t, "ReplaceActiveSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpgradePlanCancelsCurrentAndActivatesNew(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanPro), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanMax).Return(maxPlan(), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)
	repo.On("ReplaceActiveSubscription", mock.Anything, "sub-1", model.SubscriptionStatusCancelled,
		mock.MatchedBy(func(next *model.Subscription) bool {
			return next.PlanType == model.PlanMax &&
				next.Status == model.SubscriptionStatusActive &&
				next.AutoRenew &&
				next.ExpiresAt != nil &&
				next.ExpiresAt.Equal(now.AddDate(0, 1, 0))
		}),
		mock.MatchedBy(func(change *model.PlanChange) bool {
			return change.ChangeType == model.PlanChangeUpgrade &&
				change.FromPlan == model.PlanPro && change.ToPlan == model.PlanMax
		})).Return(nil)

	sub, err := svc.UpgradePlan(context.Background(), "user-1", model.PlanMax, "card")

	assert.NoError(t, err)
	assert.Equal(t, model.PlanMax, sub.PlanType)
	repo.AssertExpectations(t)
}

func TestUpgradePlanUnknownPlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanFree), nil)
	repo.On("GetPlanByType", mock.Anything, "platinum").Return(nil, nil)

	_, err := svc.UpgradePlan(context.Background(), "user-1", "platinum", "card")

	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestDowngradePlanDefersToAfterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	current := activeSub(model.PlanPro)
	current.ExpiresAt = &expiresAt

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(current, nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanFree).Return(zeroPlan(), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)
	repo.On("ScheduleDeferredPlan", mock.Anything, "sub-1",
		mock.MatchedBy(func(pending *model.Subscription) bool {
			return pending.PlanType == model.PlanFree &&
				pending.Status == model.SubscriptionStatusPending &&
				pending.StartedAt.Equal(expiresAt.AddDate(0, 0, 1)) &&
				!pending.AutoRenew
		}),
		mock.MatchedBy(func(change *model.PlanChange) bool {
			return change.ChangeType == model.PlanChangeDowngrade
		})).Return(nil)

	pending, err := svc.DowngradePlan(context.Background(), "user-1", model.PlanFree)

	assert.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPending, pending.Status)
	repo.AssertExpectations(t)
}

func TestDowngradePlanRejectsHigherPrice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanPro), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanMax).Return(maxPlan(), nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)

	_, err := svc.DowngradePlan(context.Background(), "user-1", model.PlanMax)

	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelSubscriptionRejectsFreePlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanFree), nil)

	err := svc.CancelSubscription(context.Background(), "user-1")

	assert.ErrorIs(t, err, ErrNothingToCancel)
}

func TestCancelSubscriptionSchedulesFreePlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	current := activeSub(model.PlanPro)
	current.ExpiresAt = &expiresAt

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(current, nil)
	repo.On("ScheduleDeferredPlan", mock.Anything, "sub-1",
		mock.MatchedBy(func(pending *model.Subscription) bool {
			return pending.PlanType == model.PlanFree &&
				pending.StartedAt.Equal(expiresAt.AddDate(0, 0, 1))
		}),
		mock.MatchedBy(func(change *model.PlanChange) bool {
			return change.ChangeType == model.PlanChangeCancel
		})).Return(nil)

	err := svc.CancelSubscription(context.Background(), "user-1")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRefundAndCancelProratesRemainingDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// 15 full days remain (exactly 360 hours).
	expiresAt := now.Add(15 * 24 * time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	current := activeSub(model.PlanPro)
	current.ExpiresAt = &expiresAt

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(current, nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)
	repo.On("ReplaceActiveSubscription", mock.Anything, "sub-1", model.SubscriptionStatusRefunded,
		mock.MatchedBy(func(next *model.Subscription) bool {
			return next.PlanType == model.PlanFree && next.Status == model.SubscriptionStatusActive
		}),
		mock.MatchedBy(func(change *model.PlanChange) bool {
			return change.ChangeType == model.PlanChangeRefund && change.RefundCents == 1000
		})).Return(nil)

	result, err := svc.RefundAndCancel(context.Background(), "user-1", "not satisfied")

	assert.NoError(t, err)
	assert.Equal(t, 15, result.RemainingDays)
	assert.Equal(t, 1000, result.RefundCents) // 2000 * 15 / 30
	assert.Equal(t, model.PlanPro, result.FromPlan)
}

func TestRefundAndCancelPartialDayRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// 14 days and one hour remain: proration counts 15 days.
	expiresAt := now.Add(14*24*time.Hour + time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	current := activeSub(model.PlanPro)
	current.ExpiresAt = &expiresAt

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(current, nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)
	repo.On("ReplaceActiveSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := svc.RefundAndCancel(context.Background(), "user-1", "reason")

	assert.NoError(t, err)
	assert.Equal(t, 15, result.RemainingDays)
}

func TestRefundAndCancelExpiredPeriodRefundsNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(-time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	current := activeSub(model.PlanPro)
	current.ExpiresAt = &expiresAt

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(current, nil)
	repo.On("GetPlanByType", mock.Anything, model.PlanPro).Return(proPlan(), nil)
	repo.On("ReplaceActiveSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := svc.RefundAndCancel(context.Background(), "user-1", "reason")

	assert.NoError(t, err)
	assert.Equal(t, 0, result.RemainingDays)
	assert.Equal(t, 0, result.RefundCents)
}

func TestRefundAndCancelRejectsFreePlan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(activeSub(model.PlanFree), nil)

	_, err := svc.RefundAndCancel(context.Background(), "user-1", "reason")

	assert.ErrorIs(t, err, ErrNothingToCancel)
}

func TestSweepRenewsAutoRenewingSubscriptions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(-time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	lapsed := activeSub(model.PlanPro)
	lapsed.ExpiresAt = &expiresAt
	lapsed.AutoRenew = true

	repo.On("ListExpiredActive", mock.Anything, now, sweepBatchSize).Return([]*model.Subscription{lapsed}, nil)
	repo.On("RenewSubscription", mock.Anything, "sub-1", expiresAt.AddDate(0, 0, 30)).Return(nil)

	stats, err := svc.ProcessExpiredSubscriptions(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Renewed)
	assert.Equal(t, 0, stats.Expired)
	repo.AssertExpectations(t)
}

func TestSweepExpiresAndPromotesNonRenewing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(-time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	lapsed := activeSub(model.PlanPro)
	lapsed.ExpiresAt = &expiresAt
	lapsed.AutoRenew = false

	repo.On("ListExpiredActive", mock.Anything, now, sweepBatchSize).Return([]*model.Subscription{lapsed}, nil)
	repo.On("ExpireAndPromote", mock.Anything, lapsed, now, now.AddDate(0, 0, 30),
		mock.MatchedBy(func(fallback *model.Subscription) bool {
			return fallback.PlanType == model.PlanFree && fallback.UserID == "user-1"
		})).Return(model.PlanFree, nil)

	stats, err := svc.ProcessExpiredSubscriptions(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)
	repo.AssertExpectations(t)
}

func TestSweepCountsFailuresAndContinues(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(-time.Hour)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	first := activeSub(model.PlanPro)
	first.ExpiresAt = &expiresAt
	first.AutoRenew = true

	second := &model.Subscription{ID: "sub-2", UserID: "user-2", PlanType: model.PlanMax, Status: model.SubscriptionStatusActive, ExpiresAt: &expiresAt}

	repo.On("ListExpiredActive", mock.Anything, now, sweepBatchSize).Return([]*model.Subscription{first, second}, nil)
	repo.On("RenewSubscription", mock.Anything, "sub-1", mock.Anything).Return(errors.New("deadlock detected"))
	repo.On("ExpireAndPromote", mock.Anything, second, now, mock.Anything, mock.Anything).Return(model.PlanFree, nil)

	stats, err := svc.ProcessExpiredSubscriptions(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Expired)
}

func TestGetActiveSubscriptionProvisionsFreeOnFirstUse(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockSubscriptionRepo)
	svc := newSubscriptionServiceForTest(repo, now)

	repo.On("GetActiveSubscription", mock.Anything, "user-1").Return(nil, nil)
	repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub *model.Subscription) bool {
		return sub.PlanType == model.PlanFree && sub.StartedAt.Equal(now)
	})).Return(nil)

	sub, err := svc.GetActiveSubscription(context.Background(), "user-1")

	assert.NoError(t, err)
	assert.Equal(t, model.PlanFree, sub.PlanType)
	repo.AssertExpectations(t)
}
