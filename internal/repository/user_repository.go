package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/model"
)

// UserRepository handles user data persistence. This backend never creates
// users; it reads them for auth checks and writes the quarantine fields.
type UserRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.Postgres) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, role, status, locked_until, force_logout_after,
	security_quarantine_reason, security_quarantine_updated_at,
	last_login_at, last_login_ip, created_at, updated_at`

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// Quarantine locks the account until `until` and force-invalidates every
// session issued at or before `now` by setting force_logout_after
func (r *UserRepository) Quarantine(ctx context.Context, id, reason string, until, now time.Time) error {
	query := `
		UPDATE users
		SET locked_until = $1,
		    force_logout_after = $2,
		    security_quarantine_reason = $3,
		    security_quarantine_updated_at = $2,
		    updated_at = $2
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, until, now, reason, id)
	if err != nil {
		return fmt.Errorf("failed to quarantine user: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseQuarantine clears the lock and quarantine reason. The
// force_logout_after watermark is left in place so already-revoked sessions
// stay revoked.
func (r *UserRepository) ReleaseQuarantine(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE users
		SET locked_until = NULL,
		    security_quarantine_reason = NULL,
		    security_quarantine_updated_at = $1,
		    updated_at = $1
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("failed to release quarantine: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuarantined returns users whose lock is still in force at now
func (r *UserRepository) ListQuarantined(ctx context.Context, now time.Time) ([]model.User, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM users WHERE locked_until > $1 ORDER BY locked_until DESC`,
		userColumns,
	)
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantined users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quarantined users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Role,
		&u.Status,
		&u.LockedUntil,
		&u.ForceLogoutAfter,
		&u.QuarantineReason,
		&u.QuarantineUpdatedAt,
		&u.LastLoginAt,
		&u.LastLoginIP,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}
