package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// GCPProjectID enables the Pub/Sub event publisher when set. Leave empty to
	// run without eventing (local development, tests).
	GCPProjectID    string `envconfig:"GCP_PROJECT_ID"`
	QuotaAlertTopic string `envconfig:"QUOTA_ALERT_TOPIC" default:"quota-alerts"`
	PlanChangeTopic string `envconfig:"PLAN_CHANGE_TOPIC" default:"plan-changes"`

	// QuotaFailOpen flips the quota check failure policy from deny to allow when
	// the store is degraded. Rate limit and blacklist checks always fail open;
	// quota checks fail closed unless this is set.
	QuotaFailOpen bool `envconfig:"QUOTA_FAIL_OPEN" default:"false"`

	// Guard middleware settings: fraction of requests that trigger an anomaly
	// scan, the scan lookback window, and the auto-ban duration on high severity.
	AbuseSampleRate        float64 `envconfig:"ABUSE_SAMPLE_RATE" default:"0.01"`
	AbuseScanWindowMinutes int     `envconfig:"ABUSE_SCAN_WINDOW_MINUTES" default:"30"`
	AbuseAutoBanMinutes    int     `envconfig:"ABUSE_AUTO_BAN_MINUTES" default:"60"`

	// AlertSuppressionHours is the idempotence window for quota alerts: a second
	// alert for the same threshold within this window is not created.
	AlertSuppressionHours int `envconfig:"ALERT_SUPPRESSION_HOURS" default:"24"`

	// Sweeper settings
	SweepIntervalMinutes int `envconfig:"SWEEP_INTERVAL_MINUTES" default:"60"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
