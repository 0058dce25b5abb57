package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"
	"app/internal/util"

	"github.com/rs/zerolog"
)

// CooldownService enforces a minimum interval between repeated processing of
// the same resource by the same user. Checks fail open.
type CooldownService interface {
	CheckCooldown(ctx context.Context, userID, resourceID string, cooldownMinutes int) *model.LimitResult
	RecordProcessing(ctx context.Context, userID, resourceID string) error
}

type cooldownService struct {
	repo   repository.CooldownRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewCooldownService creates a new CooldownService with a scoped logger.
func NewCooldownService(repo repository.CooldownRepository, logger zerolog.Logger) CooldownService {
	return &cooldownService{
		repo:   repo,
		logger: logger.With().Str("service", "CooldownService").Logger(),
		now:    time.Now,
	}
}

// CheckCooldown allows unknown resources and denies those processed within the
// cooldown, with the time the cooldown lifts.
func (s *cooldownService) CheckCooldown(ctx context.Context, userID, resourceID string, cooldownMinutes int) *model.LimitResult {
	hash := util.HashResourceID(resourceID)
	record, err := s.repo.GetCooldown(ctx, userID, hash)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Cooldown check failed, failing open")
		return &model.LimitResult{Allowed: true}
	}
	if record == nil {
		return &model.LimitResult{Allowed: true}
	}

	cooldown := time.Duration(cooldownMinutes) * time.Minute
	if record.LastProcessedAt.After(s.now().Add(-cooldown)) {
		resetTime := record.LastProcessedAt.Add(cooldown)
		return &model.LimitResult{
			Allowed:   false,
			Reason:    fmt.Sprintf("resource was processed recently, retry after %s", resetTime.Format(time.RFC3339)),
			ResetTime: &resetTime,
		}
	}
	return &model.LimitResult{Allowed: true}
}

// RecordProcessing upserts the cooldown record for (user, resource).
func (s *cooldownService) RecordProcessing(ctx context.Context, userID, resourceID string) error {
	hash := util.HashResourceID(resourceID)
	if err := s.repo.RecordProcessing(ctx, userID, hash, s.now()); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to record processing")
		return err
	}
	return nil
}
