package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/model"
)

// BlockedIPRepository handles containment block persistence, one row per IP
type BlockedIPRepository struct {
	db *database.Postgres
}

// NewBlockedIPRepository creates a new BlockedIPRepository
func NewBlockedIPRepository(db *database.Postgres) *BlockedIPRepository {
	return &BlockedIPRepository{db: db}
}

// Upsert inserts or refreshes a block. Repeated blocks for the same IP keep
// a single row with the latest reason and expiry.
func (r *BlockedIPRepository) Upsert(ctx context.Context, b *model.BlockedIP) error {
	query := `
		INSERT INTO blocked_ips (ip, reason, blocked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (ip) DO UPDATE
		SET reason = EXCLUDED.reason,
		    blocked_until = EXCLUDED.blocked_until,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, b.IP, b.Reason, b.BlockedUntil, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert blocked IP: %w", err)
	}
	return nil
}

// GetByIP returns the block row for an IP, expired or not
func (r *BlockedIPRepository) GetByIP(ctx context.Context, ip string) (*model.BlockedIP, error) {
	query := `
		SELECT ip, reason, blocked_until, created_at, updated_at
		FROM blocked_ips
		WHERE ip = $1
	`
	var b model.BlockedIP
	err := r.db.QueryRowContext(ctx, query, ip).Scan(
		&b.IP, &b.Reason, &b.BlockedUntil, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked IP: %w", err)
	}
	return &b, nil
}

// IsBlocked reports whether ip has a block in force at now
func (r *BlockedIPRepository) IsBlocked(ctx context.Context, ip string, now time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blocked_ips WHERE ip = $1 AND blocked_until > $2)`
	var blocked bool
	if err := r.db.QueryRowContext(ctx, query, ip, now).Scan(&blocked); err != nil {
		return false, fmt.Errorf("failed to check blocked IP: %w", err)
	}
	return blocked, nil
}

// List returns blocks newest-expiry-first, optionally only those still active
func (r *BlockedIPRepository) List(ctx context.Context, activeOnly bool, now time.Time) ([]model.BlockedIP, error) {
	query := `
		SELECT ip, reason, blocked_until, created_at, updated_at
		FROM blocked_ips
	`
	args := []interface{}{}
	if activeOnly {
		query += ` WHERE blocked_until > $1`
		args = append(args, now)
	}
	query += ` ORDER BY blocked_until DESC LIMIT 500`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked IPs: %w", err)
	}
	defer rows.Close()

	blocks := []model.BlockedIP{}
	for rows.Next() {
		var b model.BlockedIP
		if err := rows.Scan(&b.IP, &b.Reason, &b.BlockedUntil, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked IP: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocked IPs: %w", err)
	}
	return blocks, nil
}

// Delete removes a block (manual unblock)
func (r *BlockedIPRepository) Delete(ctx context.Context, ip string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blocked_ips WHERE ip = $1`, ip)
	if err != nil {
		return fmt.Errorf("failed to delete blocked IP: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
