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

// CooldownRepository stores per-(user, resource) processing timestamps.
type CooldownRepository interface {
	// GetCooldown returns the record for (user, resource hash), nil if none.
	GetCooldown(ctx context.Context, userID, resourceHash string) (*model.CooldownRecord, error)
	// RecordProcessing upserts the record, bumping process_count and setting
	// last_processed_at to now.
	RecordProcessing(ctx context.Context, userID, resourceHash string, now time.Time) error
}

type cooldownRepo struct {
	pool *pgxpool.Pool
}

// NewCooldownRepo creates a new CooldownRepository.
func NewCooldownRepo(pool *pgxpool.Pool) CooldownRepository {
	return &cooldownRepo{pool: pool}
}

func (r *cooldownRepo) GetCooldown(ctx context.Context, userID, resourceHash string) (*model.CooldownRecord, error) {
	const q = `
        SELECT user_id, resource_hash, last_processed_at, process_count
        FROM cooldown_records
        WHERE user_id = $1 AND resource_hash = $2
    `
	var c model.CooldownRecord
	err := r.pool.QueryRow(ctx, q, userID, resourceHash).Scan(&c.UserID, &c.ResourceHash, &c.LastProcessedAt, &c.ProcessCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cooldown record for user %s: %w", userID, err)
	}
	return &c, nil
}

func (r *cooldownRepo) RecordProcessing(ctx context.Context, userID, resourceHash string, now time.Time) error {
	const q = `
        INSERT INTO cooldown_records (user_id, resource_hash, last_processed_at, process_count)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (user_id, resource_hash)
        DO UPDATE SET last_processed_at = $3, process_count = cooldown_records.process_count + 1
    `
	if _, err := r.pool.Exec(ctx, q, userID, resourceHash, now); err != nil {
		return fmt.Errorf("record processing for user %s: %w", userID, err)
	}
	return nil
}
