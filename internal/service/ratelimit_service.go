package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// RateLimit is one fixed-window limit: maxOperations per window.
type RateLimit struct {
	MaxOperations int
	Window        time.Duration
}

// RateLimitConfig maps operation types to their limits on each tier.
// Operation types missing from a map are unconditionally allowed on that tier.
type RateLimitConfig struct {
	User map[string]RateLimit
	IP   map[string]RateLimit
}

// DefaultRateLimitConfig returns the stock per-operation limits: a loose
// daily user tier and a tighter, shorter IP tier.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		User: map[string]RateLimit{
			model.OpPlanChange:    {MaxOperations: 3, Window: 24 * time.Hour},
			model.OpVideoProcess:  {MaxOperations: 100, Window: 24 * time.Hour},
			model.OpShareCreate:   {MaxOperations: 50, Window: 24 * time.Hour},
			model.OpExportContent: {MaxOperations: 20, Window: 24 * time.Hour},
		},
		IP: map[string]RateLimit{
			model.OpVideoProcess: {MaxOperations: 10, Window: time.Hour},
			model.OpPlanChange:   {MaxOperations: 5, Window: time.Hour},
			model.OpLoginAttempt: {MaxOperations: 10, Window: 15 * time.Minute},
		},
	}
}

// RateLimitService enforces the dual-tier fixed-window operation limits.
// Check-style methods fail open: an internal error defends availability over
// strict enforcement.
type RateLimitService interface {
	CheckUserOperationLimit(ctx context.Context, userID, operationType string) *model.LimitResult
	// RecordUserOperation counts the attempt whether or not the check passed.
	RecordUserOperation(ctx context.Context, userID, operationType string) error
	CheckIPLimit(ctx context.Context, ip, operationType string) *model.LimitResult
	// RecordIPOperation appends to the IP operation log regardless of outcome.
	RecordIPOperation(ctx context.Context, entry *model.IPOperationLog) error
}

type rateLimitService struct {
	repo   repository.OperationRepository
	limits *RateLimitConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService with a scoped logger.
// A nil limits config uses the defaults.
func NewRateLimitService(repo repository.OperationRepository, limits *RateLimitConfig, logger zerolog.Logger) RateLimitService {
	if limits == nil {
		limits = DefaultRateLimitConfig()
	}
	return &rateLimitService{
		repo:   repo,
		limits: limits,
		logger: logger.With().Str("service", "RateLimitService").Logger(),
		now:    time.Now,
	}
}

// CheckUserOperationLimit reads the fixed-window counter. A window that has
// elapsed counts as 0; the reset itself is written back only on the next
// record, not here, to keep the read path write-free.
func (s *rateLimitService) CheckUserOperationLimit(ctx context.Context, userID, operationType string) *model.LimitResult {
	limit, ok := s.limits.User[operationType]
	if !ok {
		return &model.LimitResult{Allowed: true}
	}

	counter, err := s.repo.GetUserCounter(ctx, userID, operationType)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("operation_type", operationType).Msg("User rate limit check failed, failing open")
		return &model.LimitResult{Allowed: true}
	}
	now := s.now()
	if counter == nil || !counter.WindowStart.After(now.Add(-limit.Window)) {
		return &model.LimitResult{Allowed: true}
	}
	if counter.Count >= limit.MaxOperations {
		resetTime := counter.WindowStart.Add(limit.Window)
		return &model.LimitResult{
			Allowed:   false,
			Reason:    fmt.Sprintf("operation limit of %d per %s reached for %s", limit.MaxOperations, limit.Window, operationType),
			ResetTime: &resetTime,
		}
	}
	return &model.LimitResult{Allowed: true}
}

// RecordUserOperation bumps the attempt counter, lazily resetting stale windows.
func (s *rateLimitService) RecordUserOperation(ctx context.Context, userID, operationType string) error {
	limit, ok := s.limits.User[operationType]
	if !ok {
		// No window to account against.
		return nil
	}
	now := s.now()
	if err := s.repo.BumpUserCounter(ctx, userID, operationType, now, now.Add(-limit.Window)); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("operation_type", operationType).Msg("Failed to record user operation")
		return err
	}
	return nil
}

// CheckIPLimit counts recent log rows for the IP within the sliding window.
func (s *rateLimitService) CheckIPLimit(ctx context.Context, ip, operationType string) *model.LimitResult {
	limit, ok := s.limits.IP[operationType]
	if !ok {
		return &model.LimitResult{Allowed: true}
	}

	now := s.now()
	count, err := s.repo.CountIPOperations(ctx, ip, operationType, now.Add(-limit.Window))
	if err != nil {
		s.logger.Error().Err(err).Str("ip", ip).Str("operation_type", operationType).Msg("IP rate limit check failed, failing open")
		return &model.LimitResult{Allowed: true}
	}
	if count >= limit.MaxOperations {
		// Sliding lookback has no fixed boundary; the oldest row ages out within one window.
		resetTime := now.Add(limit.Window)
		return &model.LimitResult{
			Allowed:   false,
			Reason:    fmt.Sprintf("ip limit of %d per %s reached for %s", limit.MaxOperations, limit.Window, operationType),
			ResetTime: &resetTime,
		}
	}
	return &model.LimitResult{Allowed: true}
}

// RecordIPOperation appends the attempt to the IP operation log.
func (s *rateLimitService) RecordIPOperation(ctx context.Context, entry *model.IPOperationLog) error {
	if err := s.repo.InsertIPOperation(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("ip", entry.IP).Str("operation_type", entry.OperationType).Msg("Failed to record ip operation")
		return err
	}
	return nil
}
