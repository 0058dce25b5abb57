package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OperationRepository backs both rate limit tiers: the fixed-window per-user
// counters and the append-only per-IP operation log.
type OperationRepository interface {
	// GetUserCounter returns the user's counter for the operation, nil if none.
	GetUserCounter(ctx context.Context, userID, operationType string) (*model.OperationCounter, error)
	// BumpUserCounter increments the fixed-window counter in one atomic
	// statement, resetting count and window_start first when the stored window
	// started at or before staleBefore (lazy reset).
	BumpUserCounter(ctx context.Context, userID, operationType string, now, staleBefore time.Time) error
	CountIPOperations(ctx context.Context, ip, operationType string, since time.Time) (int, error)
	InsertIPOperation(ctx context.Context, entry *model.IPOperationLog) error
	// AggregateIPOperations groups the IP's recent log rows by
	// (operation type, success) for anomaly detection.
	AggregateIPOperations(ctx context.Context, ip string, since time.Time) ([]*model.IPOperationAggregate, error)
}

type operationRepo struct {
	pool *pgxpool.Pool
}

// NewOperationRepo creates a new OperationRepository.
func NewOperationRepo(pool *pgxpool.Pool) OperationRepository {
	return &operationRepo{pool: pool}
}

func (r *operationRepo) GetUserCounter(ctx context.Context, userID, operationType string) (*model.OperationCounter, error) {
	const q = `
        SELECT user_id, operation_type, count, window_start
        FROM user_operation_counters
        WHERE user_id = $1 AND operation_type = $2
    `
	var c model.OperationCounter
	err := r.pool.QueryRow(ctx, q, userID, operationType).Scan(&c.UserID, &c.OperationType, &c.Count, &c.WindowStart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %s counter for user %s: %w", operationType, userID, err)
	}
	return &c, nil
}

// BumpUserCounter counts the attempt whether or not the preceding check passed.
func (r *operationRepo) BumpUserCounter(ctx context.Context, userID, operationType string, now, staleBefore time.Time) error {
	const q = `
        INSERT INTO user_operation_counters (user_id, operation_type, count, window_start)
        VALUES ($1, $2, 1, $3)
        ON CONFLICT (user_id, operation_type) DO UPDATE
        SET count = CASE
                WHEN user_operation_counters.window_start <= $4 THEN 1
                ELSE user_operation_counters.count + 1
            END,
            window_start = CASE
                WHEN user_operation_counters.window_start <= $4 THEN $3
                ELSE user_operation_counters.window_start
            END
    `
	if _, err := r.pool.Exec(ctx, q, userID, operationType, now, staleBefore); err != nil {
		return fmt.Errorf("bump %s counter for user %s: %w", operationType, userID, err)
	}
	return nil
}

func (r *operationRepo) CountIPOperations(ctx context.Context, ip, operationType string, since time.Time) (int, error) {
	const q = `
        SELECT COUNT(*)
        FROM ip_operation_log
        WHERE ip = $1 AND operation_type = $2 AND created_at > $3
    `
	var count int
	if err := r.pool.QueryRow(ctx, q, ip, operationType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s operations for ip %s: %w", operationType, ip, err)
	}
	return count, nil
}

func (r *operationRepo) InsertIPOperation(ctx context.Context, entry *model.IPOperationLog) error {
	const q = `
        INSERT INTO ip_operation_log (ip, operation_type, success, user_id, path, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
    `
	_, err := r.pool.Exec(ctx, q,
		entry.IP, entry.OperationType, entry.Success, entry.UserID, entry.Path, entry.UserAgent)
	if err != nil {
		return fmt.Errorf("insert operation log for ip %s: %w", entry.IP, err)
	}
	return nil
}

func (r *operationRepo) AggregateIPOperations(ctx context.Context, ip string, since time.Time) ([]*model.IPOperationAggregate, error) {
	const q = `
        SELECT operation_type, success, COUNT(*)
        FROM ip_operation_log
        WHERE ip = $1 AND created_at > $2
        GROUP BY operation_type, success
    `
	rows, err := r.pool.Query(ctx, q, ip, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate operations for ip %s: %w", ip, err)
	}
	defer rows.Close()

	var aggs []*model.IPOperationAggregate
	for rows.Next() {
		var a model.IPOperationAggregate
		if err := rows.Scan(&a.OperationType, &a.Success, &a.Count); err != nil {
			return nil, fmt.Errorf("scan operation aggregate for ip %s: %w", ip, err)
		}
		aggs = append(aggs, &a)
	}
	return aggs, rows.Err()
}
