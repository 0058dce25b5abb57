package model

import "time"

// Quota types tracked by the engine.
const (
	QuotaTypeVideoProcessing = "video_processing"
	QuotaTypeShares          = "shares"
)

// Quota alert types, created when usage crosses 80% or 100% of a limit.
const (
	AlertTypeWarning      = "warning"
	AlertTypeLimitReached = "limit_reached"
)

// QuotaUsage is the aggregate counter for one (user, quota type, period).
// Periods are calendar months; a new period implicitly starts a fresh row.
type QuotaUsage struct {
	UserID      string    `db:"user_id" json:"user_id"`
	QuotaType   string    `db:"quota_type" json:"quota_type"`
	UsedAmount  int64     `db:"used_amount" json:"used_amount"`
	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
}

// QuotaUsageLog is one append-only audit row behind the aggregate counter.
// VideoDurationSec doubles as the per-video duration ledger that is summed
// for the monthly aggregate-duration check.
type QuotaUsageLog struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	QuotaType        string    `db:"quota_type" json:"quota_type"`
	Action           string    `db:"action" json:"action"`
	Amount           int64     `db:"amount" json:"amount"`
	VideoDurationSec int       `db:"video_duration_sec" json:"video_duration_sec,omitempty"`
	FileSizeMB       int       `db:"file_size_mb" json:"file_size_mb,omitempty"`
	ResourceID       string    `db:"resource_id" json:"resource_id,omitempty"`
	ResourceType     string    `db:"resource_type" json:"resource_type,omitempty"`
	IP               string    `db:"ip" json:"ip,omitempty"`
	UserAgent        string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// QuotaAlert is a threshold notification row; Sent doubles as the read flag.
type QuotaAlert struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"user_id"`
	QuotaType           string    `db:"quota_type" json:"quota_type"`
	AlertType           string    `db:"alert_type" json:"alert_type"`
	ThresholdPercentage int       `db:"threshold_percentage" json:"threshold_percentage"`
	Message             string    `db:"message" json:"message"`
	Sent                bool      `db:"sent" json:"sent"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// QuotaMetadata carries the per-request attributes checked against plan limits.
type QuotaMetadata struct {
	VideoDurationSec int `json:"video_duration_sec,omitempty"`
	FileSizeMB       int `json:"file_size_mb,omitempty"`
}

// QuotaCheckResult is the decision returned by a quota check. Check-style
// operations always return a decision, never an error.
type QuotaCheckResult struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	Code            string `json:"code,omitempty"`
	CurrentUsage    int64  `json:"current_usage"`
	Limit           int64  `json:"limit"`
	UpgradeRequired bool   `json:"upgrade_required,omitempty"`
	SuggestedPlan   string `json:"suggested_plan,omitempty"`
}
