package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing subscription state and
// the plan change audit log. Multi-row transitions run inside a single
// transaction; a failure mid-transition rolls back entirely.
type SubscriptionRepository interface {
	GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GetPendingSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GetPlanByType(ctx context.Context, planType string) (*model.QuotaPlan, error)
	// CreateSubscription inserts a new subscription row as-is.
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	// ReplaceActiveSubscription marks the current row with closedStatus, inserts
	// next as the new active row and appends the audit entry, in one transaction.
	ReplaceActiveSubscription(ctx context.Context, currentID, closedStatus string, next *model.Subscription, change *model.PlanChange) error
	// ScheduleDeferredPlan disables auto-renew on the current row, replaces any
	// existing pending row with the given one and appends the audit entry.
	ScheduleDeferredPlan(ctx context.Context, currentID string, pending *model.Subscription, change *model.PlanChange) error
	// ListExpiredActive returns active rows whose expires_at has passed.
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
	// RenewSubscription extends an active row's expiry in place.
	RenewSubscription(ctx context.Context, id string, newExpiry time.Time) error
	// ExpireAndPromote marks the given active row expired, promotes the user's
	// oldest pending row (or inserts the given fallback) to active and deletes
	// any remaining pending rows, in one transaction. Returns the promoted plan.
	ExpireAndPromote(ctx context.Context, sub *model.Subscription, now, newExpiry time.Time, fallback *model.Subscription) (string, error)
	ListPlanChanges(ctx context.Context, userID string, limit int) ([]*model.PlanChange, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_type, status, started_at, expires_at, auto_renew, payment_method, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PlanType,
		&s.Status,
		&s.StartedAt,
		&s.ExpiresAt,
		&s.AutoRenew,
		&s.PaymentMethod,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveSubscription returns the user's active subscription, or nil if none exists.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	q := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE user_id = $1 AND status = 'active'
    `
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

// GetPendingSubscription returns the user's pending subscription, or nil if none exists.
func (r *subscriptionRepo) GetPendingSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	q := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE user_id = $1 AND status = 'pending'
        ORDER BY created_at ASC
        LIMIT 1
    `
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch pending subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

// GetPlanByType returns the plan's limits, or nil if the plan is unknown.
func (r *subscriptionRepo) GetPlanByType(ctx context.Context, planType string) (*model.QuotaPlan, error) {
	const q = `
        SELECT plan_type,
               price_monthly_cents,
               monthly_video_quota,
               max_video_duration_sec,
               max_file_size_mb,
               monthly_duration_quota_sec,
               max_shared_items,
               feature_flags
        FROM quota_plans
        WHERE plan_type = $1
    `
	var p model.QuotaPlan
	var rawFlags []byte
	err := r.pool.QueryRow(ctx, q, planType).Scan(
		&p.PlanType,
		&p.PriceMonthlyCents,
		&p.MonthlyVideoQuota,
		&p.MaxVideoDurationSec,
		&p.MaxFileSizeMB,
		&p.MonthlyDurationQuotaSec,
		&p.MaxSharedItems,
		&rawFlags,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch plan %s: %w", planType, err)
	}
	if err := json.Unmarshal(rawFlags, &p.FeatureFlags); err != nil {
		return nil, fmt.Errorf("unmarshal feature_flags for plan %s: %w", planType, err)
	}
	return &p, nil
}

const insertSubscriptionQ = `
    INSERT INTO subscriptions (id, user_id, plan_type, status, started_at, expires_at, auto_renew, payment_method, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
`

// CreateSubscription inserts a new subscription row.
func (r *subscriptionRepo) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, insertSubscriptionQ,
		sub.ID, sub.UserID, sub.PlanType, sub.Status, sub.StartedAt, sub.ExpiresAt, sub.AutoRenew, sub.PaymentMethod)
	if err != nil {
		return fmt.Errorf("insert subscription for user %s: %w", sub.UserID, err)
	}
	return nil
}

const insertPlanChangeQ = `
    INSERT INTO plan_change_log (id, user_id, from_plan, to_plan, change_type, reason, refund_cents, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
`

func insertPlanChangeTx(ctx context.Context, tx pgx.Tx, change *model.PlanChange) error {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, insertPlanChangeQ,
		change.ID, change.UserID, change.FromPlan, change.ToPlan, change.ChangeType, change.Reason, change.RefundCents)
	if err != nil {
		return fmt.Errorf("insert plan change for user %s: %w", change.UserID, err)
	}
	return nil
}

// ReplaceActiveSubscription closes the current active row and opens a new one atomically.
func (r *subscriptionRepo) ReplaceActiveSubscription(ctx context.Context, currentID, closedStatus string, next *model.Subscription, change *model.PlanChange) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction for plan replacement: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const closeQ = `UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'active'`
	tag, err := tx.Exec(ctx, closeQ, currentID, closedStatus)
	if err != nil {
		return fmt.Errorf("closing subscription %s: %w", currentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("closing subscription %s: row no longer active", currentID)
	}

	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx, insertSubscriptionQ,
		next.ID, next.UserID, next.PlanType, next.Status, next.StartedAt, next.ExpiresAt, next.AutoRenew, next.PaymentMethod); err != nil {
		return fmt.Errorf("insert replacement subscription for user %s: %w", next.UserID, err)
	}

	if err := insertPlanChangeTx(ctx, tx, change); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing plan replacement for user %s: %w", next.UserID, err)
	}
	return nil
}

// ScheduleDeferredPlan records a plan change that takes effect at current expiry.
func (r *subscriptionRepo) ScheduleDeferredPlan(ctx context.Context, currentID string, pending *model.Subscription, change *model.PlanChange) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction for deferred plan: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const disableRenewQ = `UPDATE subscriptions SET auto_renew = FALSE, updated_at = NOW() WHERE id = $1 AND status = 'active'`
	tag, err := tx.Exec(ctx, disableRenewQ, currentID)
	if err != nil {
		return fmt.Errorf("disabling auto-renew on subscription %s: %w", currentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disabling auto-renew on subscription %s: row no longer active", currentID)
	}

	// At most one pending row per user: an earlier deferred change is superseded.
	const clearPendingQ = `DELETE FROM subscriptions WHERE user_id = $1 AND status = 'pending'`
	if _, err := tx.Exec(ctx, clearPendingQ, pending.UserID); err != nil {
		return fmt.Errorf("clearing pending subscriptions for user %s: %w", pending.UserID, err)
	}

	if pending.ID == "" {
		pending.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx, insertSubscriptionQ,
		pending.ID, pending.UserID, pending.PlanType, pending.Status, pending.StartedAt, pending.ExpiresAt, pending.AutoRenew, pending.PaymentMethod); err != nil {
		return fmt.Errorf("insert pending subscription for user %s: %w", pending.UserID, err)
	}

	if err := insertPlanChangeTx(ctx, tx, change); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing deferred plan for user %s: %w", pending.UserID, err)
	}
	return nil
}

// ListExpiredActive returns active subscriptions whose expiry has passed.
func (r *subscriptionRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	q := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
        ORDER BY expires_at ASC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RenewSubscription extends an active subscription's expiry in place (silent renewal).
func (r *subscriptionRepo) RenewSubscription(ctx context.Context, id string, newExpiry time.Time) error {
	const q = `UPDATE subscriptions SET expires_at = $2, updated_at = NOW() WHERE id = $1 AND status = 'active'`
	if _, err := r.pool.Exec(ctx, q, id, newExpiry); err != nil {
		return fmt.Errorf("renew subscription %s: %w", id, err)
	}
	return nil
}

// ExpireAndPromote retires an expired row and activates the successor plan.
func (r *subscriptionRepo) ExpireAndPromote(ctx context.Context, sub *model.Subscription, now, newExpiry time.Time, fallback *model.Subscription) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("starting transaction for expiry of subscription %s: %w", sub.ID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const expireQ = `UPDATE subscriptions SET status = 'expired', updated_at = NOW() WHERE id = $1 AND status = 'active'`
	tag, err := tx.Exec(ctx, expireQ, sub.ID)
	if err != nil {
		return "", fmt.Errorf("expiring subscription %s: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Another sweep already handled this row.
		return "", nil
	}

	pendingQ := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE user_id = $1 AND status = 'pending'
        ORDER BY created_at ASC
        LIMIT 1
        FOR UPDATE
    `
	promotedPlan := ""
	pending, err := scanSubscription(tx.QueryRow(ctx, pendingQ, sub.UserID))
	switch {
	case err == nil:
		// Free rows get no expiry so later sweeps skip them. Paid successors
		// renew on their own cadence until the user cancels again.
		var expiry *time.Time
		autoRenew := false
		if pending.PlanType != model.PlanFree {
			expiry = &newExpiry
			autoRenew = true
		}
		const promoteQ = `
            UPDATE subscriptions
            SET status = 'active', started_at = $2, expires_at = $3, auto_renew = $4, updated_at = NOW()
            WHERE id = $1
        `
		if _, err := tx.Exec(ctx, promoteQ, pending.ID, now, expiry, autoRenew); err != nil {
			return "", fmt.Errorf("promoting pending subscription %s: %w", pending.ID, err)
		}
		promotedPlan = pending.PlanType
	case errors.Is(err, pgx.ErrNoRows):
		if fallback.ID == "" {
			fallback.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, insertSubscriptionQ,
			fallback.ID, fallback.UserID, fallback.PlanType, fallback.Status, fallback.StartedAt, fallback.ExpiresAt, fallback.AutoRenew, fallback.PaymentMethod); err != nil {
			return "", fmt.Errorf("insert fallback subscription for user %s: %w", fallback.UserID, err)
		}
		promotedPlan = fallback.PlanType
	default:
		return "", fmt.Errorf("fetch pending subscription for user %s: %w", sub.UserID, err)
	}

	const clearPendingQ = `DELETE FROM subscriptions WHERE user_id = $1 AND status = 'pending'`
	if _, err := tx.Exec(ctx, clearPendingQ, sub.UserID); err != nil {
		return "", fmt.Errorf("clearing pending subscriptions for user %s: %w", sub.UserID, err)
	}

	change := &model.PlanChange{
		UserID:     sub.UserID,
		FromPlan:   sub.PlanType,
		ToPlan:     promotedPlan,
		ChangeType: model.PlanChangeExpiry,
	}
	if err := insertPlanChangeTx(ctx, tx, change); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing expiry for subscription %s: %w", sub.ID, err)
	}
	return promotedPlan, nil
}

// ListPlanChanges returns the most recent plan transitions for a user.
func (r *subscriptionRepo) ListPlanChanges(ctx context.Context, userID string, limit int) ([]*model.PlanChange, error) {
	const q = `
        SELECT id, user_id, from_plan, to_plan, change_type, reason, refund_cents, created_at
        FROM plan_change_log
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list plan changes for user %s: %w", userID, err)
	}
	defer rows.Close()

	var changes []*model.PlanChange
	for rows.Next() {
		var c model.PlanChange
		if err := rows.Scan(&c.ID, &c.UserID, &c.FromPlan, &c.ToPlan, &c.ChangeType, &c.Reason, &c.RefundCents, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan change for user %s: %w", userID, err)
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
