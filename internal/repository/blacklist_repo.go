package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlacklistRepository stores ip/user/email ban entries. Uniqueness of
// (type, value) is enforced among active rows by a partial unique index.
type BlacklistRepository interface {
	// GetActiveEntry returns the active entry for (type, value), nil if none.
	GetActiveEntry(ctx context.Context, entryType, value string) (*model.BlacklistEntry, error)
	// UpsertActiveEntry inserts the entry or refreshes reason/expiry of the
	// existing active entry rather than duplicating it.
	UpsertActiveEntry(ctx context.Context, entry *model.BlacklistEntry) error
	// DeactivateEntry soft-deletes the active entry, preserving history.
	DeactivateEntry(ctx context.Context, entryType, value string) (bool, error)
	ListActiveEntries(ctx context.Context, limit int) ([]*model.BlacklistEntry, error)
}

type blacklistRepo struct {
	pool *pgxpool.Pool
}

// NewBlacklistRepo creates a new BlacklistRepository.
func NewBlacklistRepo(pool *pgxpool.Pool) BlacklistRepository {
	return &blacklistRepo{pool: pool}
}

func (r *blacklistRepo) GetActiveEntry(ctx context.Context, entryType, value string) (*model.BlacklistEntry, error) {
	const q = `
        SELECT id, type, value, reason, expires_at, active, created_at, updated_at
        FROM blacklist
        WHERE type = $1 AND value = $2 AND active = TRUE
    `
	var e model.BlacklistEntry
	err := r.pool.QueryRow(ctx, q, entryType, value).Scan(
		&e.ID, &e.Type, &e.Value, &e.Reason, &e.ExpiresAt, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch blacklist entry %s/%s: %w", entryType, value, err)
	}
	return &e, nil
}

func (r *blacklistRepo) UpsertActiveEntry(ctx context.Context, entry *model.BlacklistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	// Relies on the partial unique index on (type, value) WHERE active.
	const q = `
        INSERT INTO blacklist (id, type, value, reason, expires_at, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
        ON CONFLICT (type, value) WHERE active
        DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at, updated_at = NOW()
    `
	_, err := r.pool.Exec(ctx, q, entry.ID, entry.Type, entry.Value, entry.Reason, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert blacklist entry %s/%s: %w", entry.Type, entry.Value, err)
	}
	return nil
}

func (r *blacklistRepo) DeactivateEntry(ctx context.Context, entryType, value string) (bool, error) {
	const q = `
        UPDATE blacklist
        SET active = FALSE, updated_at = NOW()
        WHERE type = $1 AND value = $2 AND active = TRUE
    `
	tag, err := r.pool.Exec(ctx, q, entryType, value)
	if err != nil {
		return false, fmt.Errorf("deactivate blacklist entry %s/%s: %w", entryType, value, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *blacklistRepo) ListActiveEntries(ctx context.Context, limit int) ([]*model.BlacklistEntry, error) {
	const q = `
        SELECT id, type, value, reason, expires_at, active, created_at, updated_at
        FROM blacklist
        WHERE active = TRUE
        ORDER BY updated_at DESC
        LIMIT $1
    `
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list active blacklist entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.BlacklistEntry
	for rows.Next() {
		var e model.BlacklistEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Value, &e.Reason, &e.ExpiresAt, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan blacklist entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
