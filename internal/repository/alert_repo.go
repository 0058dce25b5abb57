package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AlertRepository stores quota threshold alerts.
type AlertRepository interface {
	// HasRecentAlert reports whether an unsent alert for the same threshold was
	// created since the given time (the alert idempotence window).
	HasRecentAlert(ctx context.Context, userID, quotaType, alertType string, threshold int, since time.Time) (bool, error)
	InsertAlert(ctx context.Context, alert *model.QuotaAlert) error
	ListAlerts(ctx context.Context, userID string, limit int) ([]*model.QuotaAlert, error)
	MarkAlertsRead(ctx context.Context, userID string, alertIDs []string) (int64, error)
}

type alertRepo struct {
	pool *pgxpool.Pool
}

// NewAlertRepo creates a new AlertRepository.
func NewAlertRepo(pool *pgxpool.Pool) AlertRepository {
	return &alertRepo{pool: pool}
}

func (r *alertRepo) HasRecentAlert(ctx context.Context, userID, quotaType, alertType string, threshold int, since time.Time) (bool, error) {
	const q = `
        SELECT EXISTS (
            SELECT 1
            FROM quota_alerts
            WHERE user_id = $1
              AND quota_type = $2
              AND alert_type = $3
              AND threshold_percentage = $4
              AND sent = FALSE
              AND created_at > $5
        )
    `
	var exists bool
	if err := r.pool.QueryRow(ctx, q, userID, quotaType, alertType, threshold, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recent %s alert for user %s: %w", alertType, userID, err)
	}
	return exists, nil
}

func (r *alertRepo) InsertAlert(ctx context.Context, alert *model.QuotaAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	const q = `
        INSERT INTO quota_alerts (id, user_id, quota_type, alert_type, threshold_percentage, message, sent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW())
    `
	_, err := r.pool.Exec(ctx, q,
		alert.ID, alert.UserID, alert.QuotaType, alert.AlertType, alert.ThresholdPercentage, alert.Message)
	if err != nil {
		return fmt.Errorf("insert %s alert for user %s: %w", alert.AlertType, alert.UserID, err)
	}
	return nil
}

func (r *alertRepo) ListAlerts(ctx context.Context, userID string, limit int) ([]*model.QuotaAlert, error) {
	const q = `
        SELECT id, user_id, quota_type, alert_type, threshold_percentage, message, sent, created_at
        FROM quota_alerts
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var alerts []*model.QuotaAlert
	for rows.Next() {
		var a model.QuotaAlert
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuotaType, &a.AlertType, &a.ThresholdPercentage, &a.Message, &a.Sent, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert for user %s: %w", userID, err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (r *alertRepo) MarkAlertsRead(ctx context.Context, userID string, alertIDs []string) (int64, error) {
	const q = `
        UPDATE quota_alerts
        SET sent = TRUE
        WHERE user_id = $1 AND id = ANY($2)
    `
	tag, err := r.pool.Exec(ctx, q, userID, alertIDs)
	if err != nil {
		return 0, fmt.Errorf("mark alerts read for user %s: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}
