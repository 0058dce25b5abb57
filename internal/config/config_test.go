package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.GCPProjectID)
	assert.Equal(t, "quota-alerts", cfg.QuotaAlertTopic)
	assert.Equal(t, "plan-changes", cfg.PlanChangeTopic)
	assert.False(t, cfg.QuotaFailOpen)
	assert.Equal(t, 0.01, cfg.AbuseSampleRate)
	assert.Equal(t, 30, cfg.AbuseScanWindowMinutes)
	assert.Equal(t, 60, cfg.AbuseAutoBanMinutes)
	assert.Equal(t, 24, cfg.AlertSuppressionHours)
	assert.Equal(t, 60, cfg.SweepIntervalMinutes)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	// t.Setenv snapshots the previous value for cleanup; the required tag only
	// trips when the variable is absent, so unset it after.
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/engine_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("QUOTA_FAIL_OPEN", "true")
	t.Setenv("ABUSE_SAMPLE_RATE", "0.5")
	t.Setenv("SWEEP_INTERVAL_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.QuotaFailOpen)
	assert.Equal(t, 0.5, cfg.AbuseSampleRate)
	assert.Equal(t, 5, cfg.SweepIntervalMinutes)
}
