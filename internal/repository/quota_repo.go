package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuotaRepository tracks per-period usage aggregates and the append-only
// usage audit log behind them.
type QuotaRepository interface {
	// GetUsage returns the aggregate used amount for the period, 0 if no row yet.
	GetUsage(ctx context.Context, userID, quotaType string, periodStart time.Time) (int64, error)
	GetAllUsage(ctx context.Context, userID string, periodStart time.Time) ([]*model.QuotaUsage, error)
	// IncrementUsage atomically upserts-and-adds to the period aggregate and
	// returns the new total. This must stay a single statement: a
	// read-modify-write here loses updates under concurrency.
	IncrementUsage(ctx context.Context, userID, quotaType string, amount int64, periodStart, periodEnd time.Time) (int64, error)
	InsertUsageLog(ctx context.Context, entry *model.QuotaUsageLog) error
	// SumVideoDuration sums the per-video duration ledger for the period.
	SumVideoDuration(ctx context.Context, userID string, periodStart, periodEnd time.Time) (int64, error)
}

type quotaRepo struct {
	pool *pgxpool.Pool
}

// NewQuotaRepo creates a new QuotaRepository.
func NewQuotaRepo(pool *pgxpool.Pool) QuotaRepository {
	return &quotaRepo{pool: pool}
}

// GetUsage returns the used amount for (user, quota type, period), 0 if absent.
func (r *quotaRepo) GetUsage(ctx context.Context, userID, quotaType string, periodStart time.Time) (int64, error) {
	const q = `
        SELECT COALESCE(SUM(used_amount), 0)
        FROM quota_usage
        WHERE user_id = $1 AND quota_type = $2 AND period_start = $3
    `
	var used int64
	if err := r.pool.QueryRow(ctx, q, userID, quotaType, periodStart).Scan(&used); err != nil {
		return 0, fmt.Errorf("fetch quota usage %s for user %s: %w", quotaType, userID, err)
	}
	return used, nil
}

// GetAllUsage returns every quota type's aggregate for the period.
func (r *quotaRepo) GetAllUsage(ctx context.Context, userID string, periodStart time.Time) ([]*model.QuotaUsage, error) {
	const q = `
        SELECT user_id, quota_type, used_amount, period_start, period_end
        FROM quota_usage
        WHERE user_id = $1 AND period_start = $2
        ORDER BY quota_type
    `
	rows, err := r.pool.Query(ctx, q, userID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("list quota usage for user %s: %w", userID, err)
	}
	defer rows.Close()

	var usages []*model.QuotaUsage
	for rows.Next() {
		var u model.QuotaUsage
		if err := rows.Scan(&u.UserID, &u.QuotaType, &u.UsedAmount, &u.PeriodStart, &u.PeriodEnd); err != nil {
			return nil, fmt.Errorf("scan quota usage for user %s: %w", userID, err)
		}
		usages = append(usages, &u)
	}
	return usages, rows.Err()
}

// IncrementUsage adds amount to the period aggregate in one atomic statement.
func (r *quotaRepo) IncrementUsage(ctx context.Context, userID, quotaType string, amount int64, periodStart, periodEnd time.Time) (int64, error) {
	const q = `
        INSERT INTO quota_usage (user_id, quota_type, used_amount, period_start, period_end)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, quota_type, period_start)
        DO UPDATE SET used_amount = quota_usage.used_amount + EXCLUDED.used_amount
        RETURNING used_amount
    `
	var total int64
	if err := r.pool.QueryRow(ctx, q, userID, quotaType, amount, periodStart, periodEnd).Scan(&total); err != nil {
		return 0, fmt.Errorf("increment quota usage %s for user %s: %w", quotaType, userID, err)
	}
	return total, nil
}

// InsertUsageLog appends an immutable usage audit row.
func (r *quotaRepo) InsertUsageLog(ctx context.Context, entry *model.QuotaUsageLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const q = `
        INSERT INTO quota_usage_log (id, user_id, quota_type, action, amount, video_duration_sec, file_size_mb, resource_id, resource_type, ip, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
    `
	_, err := r.pool.Exec(ctx, q,
		entry.ID, entry.UserID, entry.QuotaType, entry.Action, entry.Amount,
		entry.VideoDurationSec, entry.FileSizeMB, entry.ResourceID, entry.ResourceType, entry.IP, entry.UserAgent)
	if err != nil {
		return fmt.Errorf("insert usage log for user %s: %w", entry.UserID, err)
	}
	return nil
}

// SumVideoDuration sums processed video seconds over the period.
func (r *quotaRepo) SumVideoDuration(ctx context.Context, userID string, periodStart, periodEnd time.Time) (int64, error) {
	const q = `
        SELECT COALESCE(SUM(video_duration_sec), 0)
        FROM quota_usage_log
        WHERE user_id = $1
          AND quota_type = $2
          AND created_at >= $3
          AND created_at <= $4
    `
	var total int64
	if err := r.pool.QueryRow(ctx, q, userID, model.QuotaTypeVideoProcessing, periodStart, periodEnd).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum video duration for user %s: %w", userID, err)
	}
	return total, nil
}
