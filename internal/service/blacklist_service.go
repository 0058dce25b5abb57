package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// BlacklistService maintains the ip/user/email ban list. Checks fail open.
type BlacklistService interface {
	Check(ctx context.Context, entryType, value string) *model.BlacklistCheckResult
	// Add upserts the active entry for (type, value): a repeat call refreshes
	// reason and expiry rather than erroring.
	Add(ctx context.Context, entryType, value, reason string, expiresAt *time.Time) error
	// Remove soft-deactivates the entry, preserving history. Returns whether an
	// active entry existed.
	Remove(ctx context.Context, entryType, value string) (bool, error)
	List(ctx context.Context, limit int) ([]*model.BlacklistEntry, error)
}

type blacklistService struct {
	repo   repository.BlacklistRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewBlacklistService creates a new BlacklistService with a scoped logger.
func NewBlacklistService(repo repository.BlacklistRepository, logger zerolog.Logger) BlacklistService {
	return &blacklistService{
		repo:   repo,
		logger: logger.With().Str("service", "BlacklistService").Logger(),
		now:    time.Now,
	}
}

// Check reports whether an active, unexpired entry blocks (type, value).
func (s *blacklistService) Check(ctx context.Context, entryType, value string) *model.BlacklistCheckResult {
	entry, err := s.repo.GetActiveEntry(ctx, entryType, value)
	if err != nil {
		s.logger.Error().Err(err).Str("type", entryType).Str("value", value).Msg("Blacklist check failed, failing open")
		return &model.BlacklistCheckResult{Blocked: false}
	}
	if entry == nil {
		return &model.BlacklistCheckResult{Blocked: false}
	}
	if entry.ExpiresAt != nil && !entry.ExpiresAt.After(s.now()) {
		return &model.BlacklistCheckResult{Blocked: false}
	}
	return &model.BlacklistCheckResult{Blocked: true, Reason: entry.Reason}
}

// Add bans (type, value), refreshing the existing active entry if present.
func (s *blacklistService) Add(ctx context.Context, entryType, value, reason string, expiresAt *time.Time) error {
	if err := validateBlacklistType(entryType); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("%w: blacklist value must not be empty", ErrValidation)
	}
	entry := &model.BlacklistEntry{
		Type:      entryType,
		Value:     value,
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.UpsertActiveEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("type", entryType).Str("value", value).Msg("Failed to add blacklist entry")
		return err
	}
	s.logger.Info().Str("type", entryType).Str("value", value).Str("reason", reason).Msg("Blacklist entry added")
	return nil
}

// Remove deactivates the entry for (type, value).
func (s *blacklistService) Remove(ctx context.Context, entryType, value string) (bool, error) {
	if err := validateBlacklistType(entryType); err != nil {
		return false, err
	}
	removed, err := s.repo.DeactivateEntry(ctx, entryType, value)
	if err != nil {
		s.logger.Error().Err(err).Str("type", entryType).Str("value", value).Msg("Failed to remove blacklist entry")
		return false, err
	}
	return removed, nil
}

// List returns the active blacklist entries.
func (s *blacklistService) List(ctx context.Context, limit int) ([]*model.BlacklistEntry, error) {
	entries, err := s.repo.ListActiveEntries(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list blacklist entries")
		return nil, err
	}
	return entries, nil
}

func validateBlacklistType(entryType string) error {
	switch entryType {
	case model.BlacklistTypeIP, model.BlacklistTypeUser, model.BlacklistTypeEmail:
		return nil
	default:
		return fmt.Errorf("%w: unknown blacklist type %q", ErrValidation, entryType)
	}
}
