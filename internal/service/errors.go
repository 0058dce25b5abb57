package service

import "errors"

// Engine error taxonomy. Validation and "not found" errors surface to the
// caller with a specific reason; store errors on check-style operations are
// converted into a decision per the fail-open/fail-closed policy instead of
// being bubbled up.
var (
	ErrValidation           = errors.New("validation_error")
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrNothingToCancel      = errors.New("nothing_to_cancel")
)

// Machine-readable denial codes attached to check results.
const (
	CodeQuotaExceeded   = "quota_exceeded"
	CodeRateLimited     = "rate_limit_exceeded"
	CodeCooldownActive  = "cooldown_active"
	CodeBlacklisted     = "blacklisted"
	CodeValidationError = "validation_error"
	CodeConfigError     = "configuration_error"
	CodeInternalError   = "internal_error"
)
