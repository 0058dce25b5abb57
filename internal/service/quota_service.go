package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/util"

	"github.com/rs/zerolog"
)

// Upgrade ladder used for denial hints. max is the top tier.
var suggestedUpgrade = map[string]string{
	model.PlanFree: model.PlanPro,
	model.PlanPro:  model.PlanMax,
	model.PlanMax:  model.PlanMax,
}

// Alert thresholds, evaluated highest first.
const (
	thresholdLimitReached = 100
	thresholdWarning      = 80
)

// RecordUsageParams carries everything recorded against a user's quota.
type RecordUsageParams struct {
	UserID       string
	QuotaType    string
	Action       string
	Amount       int64
	ResourceID   string
	ResourceType string
	Metadata     *model.QuotaMetadata
	IP           string
	UserAgent    string
}

// QuotaService decides whether billable actions may proceed and accounts for
// them against the active subscription's plan limits.
type QuotaService interface {
	// CheckQuota always returns a decision; internal errors are converted per
	// the configured failure policy (fail-closed by default).
	CheckQuota(ctx context.Context, userID, quotaType string, amount int64, metadata *model.QuotaMetadata) *model.QuotaCheckResult
	RecordQuotaUsage(ctx context.Context, params RecordUsageParams) error
	GetUserAllQuotaUsage(ctx context.Context, userID string) ([]*model.QuotaUsage, error)
	GetUserQuotaAlerts(ctx context.Context, userID string) ([]*model.QuotaAlert, error)
	MarkQuotaAlertsAsRead(ctx context.Context, userID string, alertIDs []string) (int64, error)
}

type quotaService struct {
	quotaRepo        repository.QuotaRepository
	alertRepo        repository.AlertRepository
	subRepo          repository.SubscriptionRepository
	events           *pubsub.Events
	failOpen         bool
	alertSuppression time.Duration
	logger           zerolog.Logger
	now              func() time.Time
}

// NewQuotaService creates a new QuotaService with a scoped logger. failOpen
// flips the failure policy for quota checks from deny to allow when the store
// is degraded.
func NewQuotaService(
	quotaRepo repository.QuotaRepository,
	alertRepo repository.AlertRepository,
	subRepo repository.SubscriptionRepository,
	events *pubsub.Events,
	failOpen bool,
	alertSuppression time.Duration,
	logger zerolog.Logger,
) QuotaService {
	return &quotaService{
		quotaRepo:        quotaRepo,
		alertRepo:        alertRepo,
		subRepo:          subRepo,
		events:           events,
		failOpen:         failOpen,
		alertSuppression: alertSuppression,
		logger:           logger.With().Str("service", "QuotaService").Logger(),
		now:              time.Now,
	}
}

// CheckQuota resolves the active plan and applies the limit checks for the
// quota type, short-circuiting on the first failure.
func (s *quotaService) CheckQuota(ctx context.Context, userID, quotaType string, amount int64, metadata *model.QuotaMetadata) *model.QuotaCheckResult {
	_, plan, err := s.resolvePlan(ctx, userID)
	if err != nil {
		return s.failResult(err, userID, quotaType)
	}

	periodStart, periodEnd := util.MonthBounds(s.now())
	used, err := s.quotaRepo.GetUsage(ctx, userID, quotaType, periodStart)
	if err != nil {
		return s.failResult(err, userID, quotaType)
	}
	if metadata == nil {
		metadata = &model.QuotaMetadata{}
	}

	switch quotaType {
	case model.QuotaTypeVideoProcessing:
		// Check order matters: count, single-item duration, aggregate duration,
		// file size. A limit of 0 means unlimited.
		if plan.MonthlyVideoQuota > 0 && used+amount > int64(plan.MonthlyVideoQuota) {
			return s.deny(plan, used, int64(plan.MonthlyVideoQuota),
				fmt.Sprintf("monthly video quota of %d reached", plan.MonthlyVideoQuota))
		}
		if plan.MaxVideoDurationSec > 0 && metadata.VideoDurationSec > plan.MaxVideoDurationSec {
			return s.deny(plan, used, int64(plan.MonthlyVideoQuota),
				fmt.Sprintf("video duration %ds exceeds the plan maximum of %ds", metadata.VideoDurationSec, plan.MaxVideoDurationSec))
		}
		if plan.MonthlyDurationQuotaSec > 0 && metadata.VideoDurationSec > 0 {
			totalDuration, err := s.quotaRepo.SumVideoDuration(ctx, userID, periodStart, periodEnd)
			if err != nil {
				return s.failResult(err, userID, quotaType)
			}
			if totalDuration+int64(metadata.VideoDurationSec) > int64(plan.MonthlyDurationQuotaSec) {
				return s.deny(plan, used, int64(plan.MonthlyVideoQuota),
					fmt.Sprintf("monthly processing time quota of %ds reached", plan.MonthlyDurationQuotaSec))
			}
		}
		if plan.MaxFileSizeMB > 0 && metadata.FileSizeMB > plan.MaxFileSizeMB {
			return s.deny(plan, used, int64(plan.MonthlyVideoQuota),
				fmt.Sprintf("file size %dMB exceeds the plan maximum of %dMB", metadata.FileSizeMB, plan.MaxFileSizeMB))
		}
		return &model.QuotaCheckResult{Allowed: true, CurrentUsage: used, Limit: int64(plan.MonthlyVideoQuota)}

	case model.QuotaTypeShares:
		if plan.MaxSharedItems > 0 && used+amount > int64(plan.MaxSharedItems) {
			return s.deny(plan, used, int64(plan.MaxSharedItems),
				fmt.Sprintf("shared item limit of %d reached", plan.MaxSharedItems))
		}
		return &model.QuotaCheckResult{Allowed: true, CurrentUsage: used, Limit: int64(plan.MaxSharedItems)}

	default:
		return &model.QuotaCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown quota type: %s", quotaType),
			Code:    CodeValidationError,
		}
	}
}

// RecordQuotaUsage appends an audit row, increments the period aggregate
// atomically and evaluates alert thresholds against the new total.
func (s *quotaService) RecordQuotaUsage(ctx context.Context, p RecordUsageParams) error {
	periodStart, periodEnd := util.MonthBounds(s.now())

	entry := &model.QuotaUsageLog{
		UserID:       p.UserID,
		QuotaType:    p.QuotaType,
		Action:       p.Action,
		Amount:       p.Amount,
		ResourceID:   p.ResourceID,
		ResourceType: p.ResourceType,
		IP:           p.IP,
		UserAgent:    p.UserAgent,
	}
	if p.Metadata != nil {
		entry.VideoDurationSec = p.Metadata.VideoDurationSec
		entry.FileSizeMB = p.Metadata.FileSizeMB
	}
	if err := s.quotaRepo.InsertUsageLog(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("quota_type", p.QuotaType).Msg("Failed to insert usage log")
		return err
	}

	total, err := s.quotaRepo.IncrementUsage(ctx, p.UserID, p.QuotaType, p.Amount, periodStart, periodEnd)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("quota_type", p.QuotaType).Msg("Failed to increment quota usage")
		return err
	}

	if err := s.evaluateAlerts(ctx, p.UserID, p.QuotaType, total); err != nil {
		// Alerting must not fail the recorded usage; the increment is committed.
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("quota_type", p.QuotaType).Msg("Failed to evaluate quota alerts")
	}
	return nil
}

// GetUserAllQuotaUsage returns the user's current-period aggregates.
func (s *quotaService) GetUserAllQuotaUsage(ctx context.Context, userID string) ([]*model.QuotaUsage, error) {
	periodStart, _ := util.MonthBounds(s.now())
	usages, err := s.quotaRepo.GetAllUsage(ctx, userID, periodStart)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch quota usage")
		return nil, err
	}
	return usages, nil
}

// GetUserQuotaAlerts returns the user's most recent alerts.
func (s *quotaService) GetUserQuotaAlerts(ctx context.Context, userID string) ([]*model.QuotaAlert, error) {
	alerts, err := s.alertRepo.ListAlerts(ctx, userID, 50)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch quota alerts")
		return nil, err
	}
	return alerts, nil
}

// MarkQuotaAlertsAsRead flags the given alerts as read and returns the count updated.
func (s *quotaService) MarkQuotaAlertsAsRead(ctx context.Context, userID string, alertIDs []string) (int64, error) {
	n, err := s.alertRepo.MarkAlertsRead(ctx, userID, alertIDs)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to mark quota alerts as read")
		return 0, err
	}
	return n, nil
}

// resolvePlan loads the user's active subscription (provisioning a free one on
// first use) and its plan limits.
func (s *quotaService) resolvePlan(ctx context.Context, userID string) (*model.Subscription, *model.QuotaPlan, error) {
	sub, err := s.subRepo.GetActiveSubscription(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		sub = newFreeSubscription(userID, s.now())
		if err := s.subRepo.CreateSubscription(ctx, sub); err != nil {
			return nil, nil, err
		}
		s.logger.Info().Str("user_id", userID).Msg("Provisioned free subscription on first use")
	}
	plan, err := s.subRepo.GetPlanByType(ctx, sub.PlanType)
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		// Reference data is missing: a deployment problem, not a user error.
		return nil, nil, fmt.Errorf("%w: plan %s has no quota_plans row", ErrPlanNotFound, sub.PlanType)
	}
	return sub, plan, nil
}

func (s *quotaService) deny(plan *model.QuotaPlan, used, limit int64, reason string) *model.QuotaCheckResult {
	return &model.QuotaCheckResult{
		Allowed:         false,
		Reason:          reason,
		Code:            CodeQuotaExceeded,
		CurrentUsage:    used,
		Limit:           limit,
		UpgradeRequired: true,
		SuggestedPlan:   suggestedUpgrade[plan.PlanType],
	}
}

func (s *quotaService) failResult(err error, userID, quotaType string) *model.QuotaCheckResult {
	s.logger.Error().Err(err).Str("user_id", userID).Str("quota_type", quotaType).Bool("fail_open", s.failOpen).Msg("Quota check failed internally")
	if s.failOpen {
		return &model.QuotaCheckResult{Allowed: true, Reason: "quota check unavailable, failing open", Code: CodeInternalError}
	}
	return &model.QuotaCheckResult{Allowed: false, Reason: "quota check unavailable", Code: CodeInternalError}
}

func (s *quotaService) evaluateAlerts(ctx context.Context, userID, quotaType string, total int64) error {
	limit, err := s.quotaLimit(ctx, userID, quotaType)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return nil
	}

	pct := total * 100 / limit
	var alertType string
	var threshold int
	switch {
	case pct >= thresholdLimitReached:
		alertType, threshold = model.AlertTypeLimitReached, thresholdLimitReached
	case pct >= thresholdWarning:
		alertType, threshold = model.AlertTypeWarning, thresholdWarning
	default:
		return nil
	}

	since := s.now().Add(-s.alertSuppression)
	recent, err := s.alertRepo.HasRecentAlert(ctx, userID, quotaType, alertType, threshold, since)
	if err != nil {
		return err
	}
	if recent {
		return nil
	}

	alert := &model.QuotaAlert{
		UserID:              userID,
		QuotaType:           quotaType,
		AlertType:           alertType,
		ThresholdPercentage: threshold,
		Message:             fmt.Sprintf("%d%% of the %s quota used (%d of %d)", pct, quotaType, total, limit),
		CreatedAt:           s.now(),
	}
	if err := s.alertRepo.InsertAlert(ctx, alert); err != nil {
		return err
	}
	s.events.PublishQuotaAlert(ctx, alert)
	return nil
}

func (s *quotaService) quotaLimit(ctx context.Context, userID, quotaType string) (int64, error) {
	_, plan, err := s.resolvePlan(ctx, userID)
	if err != nil {
		return 0, err
	}
	switch quotaType {
	case model.QuotaTypeVideoProcessing:
		return int64(plan.MonthlyVideoQuota), nil
	case model.QuotaTypeShares:
		return int64(plan.MaxSharedItems), nil
	default:
		return 0, nil
	}
}

// newFreeSubscription builds the lazily provisioned free plan row. Free rows
// carry no expiry, so the sweep never touches them.
func newFreeSubscription(userID string, now time.Time) *model.Subscription {
	return &model.Subscription{
		UserID:    userID,
		PlanType:  model.PlanFree,
		Status:    model.SubscriptionStatusActive,
		StartedAt: now,
		AutoRenew: false,
	}
}
