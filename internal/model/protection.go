package model

import "time"

// Operation types subject to rate limiting.
const (
	OpPlanChange    = "plan_change"
	OpVideoProcess  = "video_process"
	OpShareCreate   = "share_create"
	OpExportContent = "export_content"
	OpLoginAttempt  = "login_attempt"
)

// Blacklist entry types.
const (
	BlacklistTypeIP    = "ip"
	BlacklistTypeUser  = "user"
	BlacklistTypeEmail = "email"
)

// Abuse report severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// OperationCounter is the fixed-window per-user rate limit counter. A stale
// window_start is treated as count 0 on check and rewritten on the next record.
type OperationCounter struct {
	UserID        string    `db:"user_id" json:"user_id"`
	OperationType string    `db:"operation_type" json:"operation_type"`
	Count         int       `db:"count" json:"count"`
	WindowStart   time.Time `db:"window_start" json:"window_start"`
}

// IPOperationLog is one append-only row used both for the sliding-window IP
// rate limit lookback and as input to anomaly detection.
type IPOperationLog struct {
	ID            int64     `db:"id" json:"id"`
	IP            string    `db:"ip" json:"ip"`
	OperationType string    `db:"operation_type" json:"operation_type"`
	Success       bool      `db:"success" json:"success"`
	UserID        string    `db:"user_id" json:"user_id,omitempty"`
	Path          string    `db:"path" json:"path,omitempty"`
	UserAgent     string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// IPOperationAggregate is one (operation type, success) bucket of an IP's
// recent activity.
type IPOperationAggregate struct {
	OperationType string
	Success       bool
	Count         int
}

// BlacklistEntry is an ip/user/email ban with optional expiry. At most one
// active entry exists per (type, value); removal soft-deactivates.
type BlacklistEntry struct {
	ID        string     `db:"id" json:"id"`
	Type      string     `db:"type" json:"type"`
	Value     string     `db:"value" json:"value"`
	Reason    string     `db:"reason" json:"reason"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Active    bool       `db:"active" json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// CooldownRecord tracks the last processing time of one (user, resource) pair.
// ResourceHash is a content hash of the canonicalized resource identifier so
// equivalent inputs collide predictably.
type CooldownRecord struct {
	UserID          string    `db:"user_id" json:"user_id"`
	ResourceHash    string    `db:"resource_hash" json:"resource_hash"`
	LastProcessedAt time.Time `db:"last_processed_at" json:"last_processed_at"`
	ProcessCount    int       `db:"process_count" json:"process_count"`
}

// LimitResult is the decision returned by rate limit and cooldown checks.
type LimitResult struct {
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason,omitempty"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
}

// BlacklistCheckResult is the decision returned by a blacklist check.
type BlacklistCheckResult struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// AbuseReport is the result of an anomaly scan over an IP's recent operations.
type AbuseReport struct {
	IP               string   `json:"ip"`
	WindowMinutes    int      `json:"window_minutes"`
	Patterns         []string `json:"patterns"`
	TotalOperations  int      `json:"total_operations"`
	FailedOperations int      `json:"failed_operations"`
	Severity         string   `json:"severity"`
}
