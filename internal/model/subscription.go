package model

import "time"

// Subscription statuses. A user has at most one active and at most one
// pending row at any time; the pending row is the next plan to take effect
// when the active one lapses.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusRefunded  = "refunded"
)

// Plan types, ordered by price.
const (
	PlanFree = "free"
	PlanPro  = "pro"
	PlanMax  = "max"
)

// Plan change types recorded in the audit log.
const (
	PlanChangeUpgrade   = "upgrade"
	PlanChangeDowngrade = "downgrade"
	PlanChangeCancel    = "cancel"
	PlanChangeRefund    = "refund"
	PlanChangeExpiry    = "expiry"
)

// Subscription represents one row of a user's plan history.
type Subscription struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	PlanType      string     `db:"plan_type" json:"plan_type"`
	Status        string     `db:"status" json:"status"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AutoRenew     bool       `db:"auto_renew" json:"auto_renew"`
	PaymentMethod string     `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// QuotaPlan is immutable reference data describing one plan's limits.
// A limit of 0 means unlimited.
type QuotaPlan struct {
	PlanType                string          `db:"plan_type" json:"plan_type"`
	PriceMonthlyCents       int             `db:"price_monthly_cents" json:"price_monthly_cents"`
	MonthlyVideoQuota       int             `db:"monthly_video_quota" json:"monthly_video_quota"`
	MaxVideoDurationSec     int             `db:"max_video_duration_sec" json:"max_video_duration_sec"`
	MaxFileSizeMB           int             `db:"max_file_size_mb" json:"max_file_size_mb"`
	MonthlyDurationQuotaSec int             `db:"monthly_duration_quota_sec" json:"monthly_duration_quota_sec"`
	MaxSharedItems          int             `db:"max_shared_items" json:"max_shared_items"`
	FeatureFlags            map[string]bool `db:"feature_flags" json:"feature_flags"`
}

// PlanChange is one row of the append-only plan transition audit log.
type PlanChange struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FromPlan    string    `db:"from_plan" json:"from_plan"`
	ToPlan      string    `db:"to_plan" json:"to_plan"`
	ChangeType  string    `db:"change_type" json:"change_type"`
	Reason      string    `db:"reason" json:"reason,omitempty"`
	RefundCents int       `db:"refund_cents" json:"refund_cents,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RefundResult reports the outcome of an immediate refund-and-cancel.
type RefundResult struct {
	RefundCents   int    `json:"refund_cents"`
	RemainingDays int    `json:"remaining_days"`
	FromPlan      string `json:"from_plan"`
}
