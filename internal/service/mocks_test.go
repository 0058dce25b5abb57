package service

import (
	"context"
	"time"

	"app/internal/model"

	"github.com/stretchr/testify/mock"
)

// MockSubscriptionRepo is a mock implementation of repository.SubscriptionRepository.
type MockSubscriptionRepo struct {
	mock.Mock
}

func (m *MockSubscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) GetPendingSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) GetPlanByType(ctx context.Context, planType string) (*model.QuotaPlan, error) {
	args := m.Called(ctx, planType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QuotaPlan), args.Error(1)
}

func (m *MockSubscriptionRepo) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ReplaceActiveSubscription(ctx context.Context, currentID, closedStatus string, next *model.Subscription, change *model.PlanChange) error {
	args := m.Called(ctx, currentID, closedStatus, next, change)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ScheduleDeferredPlan(ctx context.Context, currentID string, pending *model.Subscription, change *model.PlanChange) error {
	args := m.Called(ctx, currentID, pending, change)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepo) RenewSubscription(ctx context.Context, id string, newExpiry time.Time) error {
	args := m.Called(ctx, id, newExpiry)
	return args.Error(0)
}

func (m *MockSubscriptionRepo) ExpireAndPromote(ctx context.Context, sub *model.Subscription, now, newExpiry time.Time, fallback *model.Subscription) (string, error) {
	args := m.Called(ctx, sub, now, newExpiry, fallback)
	return args.String(0), args.Error(1)
}

func (m *MockSubscriptionRepo) ListPlanChanges(ctx context.Context, userID string, limit int) ([]*model.PlanChange, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PlanChange), args.Error(1)
}

// MockQuotaRepo is a mock implementation of repository.QuotaRepository.
type MockQuotaRepo struct {
	mock.Mock
}

func (m *MockQuotaRepo) GetUsage(ctx context.Context, userID, quotaType string, periodStart time.Time) (int64, error) {
	args := m.Called(ctx, userID, quotaType, periodStart)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuotaRepo) GetAllUsage(ctx context.Context, userID string, periodStart time.Time) ([]*model.QuotaUsage, error) {
	args := m.Called(ctx, userID, periodStart)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QuotaUsage), args.Error(1)
}

func (m *MockQuotaRepo) IncrementUsage(ctx context.Context, userID, quotaType string, amount int64, periodStart, periodEnd time.Time) (int64, error) {
	args := m.Called(ctx, userID, quotaType, amount, periodStart, periodEnd)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuotaRepo) InsertUsageLog(ctx context.Context, entry *model.QuotaUsageLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockQuotaRepo) SumVideoDuration(ctx context.Context, userID string, periodStart, periodEnd time.Time) (int64, error) {
	args := m.Called(ctx, userID, periodStart, periodEnd)
	return args.Get(0).(int64), args.Error(1)
}

// MockAlertRepo is a mock implementation of repository.AlertRepository.
type MockAlertRepo struct {
	mock.Mock
}

func (m *MockAlertRepo) HasRecentAlert(ctx context.Context, userID, quotaType, alertType string, threshold int, since time.Time) (bool, error) {
	args := m.Called(ctx, userID, quotaType, alertType, threshold, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockAlertRepo) InsertAlert(ctx context.Context, alert *model.QuotaAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockAlertRepo) ListAlerts(ctx context.Context, userID string, limit int) ([]*model.QuotaAlert, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QuotaAlert), args.Error(1)
}

func (m *MockAlertRepo) MarkAlertsRead(ctx context.Context, userID string, alertIDs []string) (int64, error) {
	args := m.Called(ctx, userID, alertIDs)
	return args.Get(0).(int64), args.Error(1)
}

// MockOperationRepo is a mock implementation of repository.OperationRepository.
type MockOperationRepo struct {
	mock.Mock
}

func (m *MockOperationRepo) GetUserCounter(ctx context.Context, userID, operationType string) (*model.OperationCounter, error) {
	args := m.Called(ctx, userID, operationType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OperationCounter), args.Error(1)
}

func (m *MockOperationRepo) BumpUserCounter(ctx context.Context, userID, operationType string, now, staleBefore time.Time) error {
	args := m.Called(ctx, userID, operationType, now, staleBefore)
	return args.Error(0)
}

func (m *MockOperationRepo) CountIPOperations(ctx context.Context, ip, operationType string, since time.Time) (int, error) {
	args := m.Called(ctx, ip, operationType, since)
	return args.Int(0), args.Error(1)
}

func (m *MockOperationRepo) InsertIPOperation(ctx context.Context, entry *model.IPOperationLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockOperationRepo) AggregateIPOperations(ctx context.Context, ip string, since time.Time) ([]*model.IPOperationAggregate, error) {
	args := m.Called(ctx, ip, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.IPOperationAggregate), args.Error(1)
}

// MockBlacklistRepo is a mock implementation of repository.BlacklistRepository.
type MockBlacklistRepo struct {
	mock.Mock
}

func (m *MockBlacklistRepo) GetActiveEntry(ctx context.Context, entryType, value string) (*model.BlacklistEntry, error) {
	args := m.Called(ctx, entryType, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BlacklistEntry), args.Error(1)
}

func (m *MockBlacklistRepo) UpsertActiveEntry(ctx context.Context, entry *model.BlacklistEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockBlacklistRepo) DeactivateEntry(ctx context.Context, entryType, value string) (bool, error) {
	args := m.Called(ctx, entryType, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlacklistRepo) ListActiveEntries(ctx context.Context, limit int) ([]*model.BlacklistEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.BlacklistEntry), args.Error(1)
}

// MockCooldownRepo is a mock implementation of repository.CooldownRepository.
type MockCooldownRepo struct {
	mock.Mock
}

func (m *MockCooldownRepo) GetCooldown(ctx context.Context, userID, resourceHash string) (*model.CooldownRecord, error) {
	args := m.Called(ctx, userID, resourceHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CooldownRecord), args.Error(1)
}

func (m *MockCooldownRepo) RecordProcessing(ctx context.Context, userID, resourceHash string, now time.Time) error {
	args := m.Called(ctx, userID, resourceHash, now)
	return args.Error(0)
}
