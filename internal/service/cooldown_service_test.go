package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/util"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newCooldownServiceForTest(repo *MockCooldownRepo, now time.Time) *cooldownService {
	svc := NewCooldownService(repo, zerolog.Nop()).(*cooldownService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCheckCooldownAllowsUnknownResource(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	url := "https://youtube.com/watch?v=abc123"
	repo.On("GetCooldown", mock.Anything, "user-1", util.HashResourceID(url)).Return(nil, nil)

	result := svc.CheckCooldown(context.Background(), "user-1", url, 60)

	assert.True(t, result.Allowed)
}

func TestCheckCooldownDeniesRecentlyProcessed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	url := "https://youtube.com/watch?v=abc123"
	lastProcessed := now.Add(-10 * time.Minute)
	repo.On("GetCooldown", mock.Anything, "user-1", util.HashResourceID(url)).Return(&model.CooldownRecord{
		UserID: "user-1", LastProcessedAt: lastProcessed, ProcessCount: 1,
	}, nil)

	result := svc.CheckCooldown(context.Background(), "user-1", url, 60)

	assert.False(t, result.Allowed)
	assert.NotNil(t, result.ResetTime)
	assert.Equal(t, lastProcessed.Add(60*time.Minute), *result.ResetTime)
}

func TestCheckCooldownAllowsAfterWindowElapsed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	url := "https://youtube.com/watch?v=abc123"
	repo.On("GetCooldown", mock.Anything, "user-1", util.HashResourceID(url)).Return(&model.CooldownRecord{
		UserID: "user-1", LastProcessedAt: now.Add(-61 * time.Minute), ProcessCount: 1,
	}, nil)

	result := svc.CheckCooldown(context.Background(), "user-1", url, 60)

	assert.True(t, result.Allowed)
}

func TestCheckCooldownEquivalentURLsShareRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	// Same video, different spelling.
	hash := util.HashResourceID("https://youtube.com/watch?v=abc123")
	repo.On("GetCooldown", mock.Anything, "user-1", hash).Return(&model.CooldownRecord{
		UserID: "user-1", LastProcessedAt: now.Add(-time.Minute), ProcessCount: 1,
	}, nil)

	result := svc.CheckCooldown(context.Background(), "user-1", "HTTPS://YouTube.com/watch?v=abc123#t=30", 60)

	assert.False(t, result.Allowed)
}

func TestCheckCooldownFailsOpen(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	repo.On("GetCooldown", mock.Anything, "user-1", mock.Anything).Return(nil, errors.New("connection refused"))

	result := svc.CheckCooldown(context.Background(), "user-1", "https://youtube.com/watch?v=abc123", 60)

	assert.True(t, result.Allowed)
}

func TestRecordProcessingUpsertsHashedResource(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := new(MockCooldownRepo)
	svc := newCooldownServiceForTest(repo, now)

	url := "https://youtube.com/watch?v=abc123"
	repo.On("RecordProcessing", mock.Anything, "user-1", util.HashResourceID(url), now).Return(nil)

	err := svc.RecordProcessing(context.Background(), "user-1", url)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
