package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threattrace/threattrace/internal/database"
	"github.com/threattrace/threattrace/internal/model"
)

func newMockUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(&database.Postgres{DB: db}), mock
}

func userRows(users ...model.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "email", "role", "status", "locked_until", "force_logout_after",
		"security_quarantine_reason", "security_quarantine_updated_at",
		"last_login_at", "last_login_ip", "created_at", "updated_at",
	})
	for _, u := range users {
		rows.AddRow(
			u.ID, u.Email, u.Role, u.Status, u.LockedUntil, u.ForceLogoutAfter,
			u.QuarantineReason, u.QuarantineUpdatedAt,
			u.LastLoginAt, u.LastLoginIP, u.CreatedAt, u.UpdatedAt,
		)
	}
	return rows
}

func TestUserRepository_GetByID(t *testing.T) {
	t.Run("returns the user", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs("user-1").
			WillReturnRows(userRows(model.User{
				ID: "user-1", Email: "ops@example.com", Role: "technical",
				Status: model.UserStatusActive,
			}))

		u, err := repo.GetByID(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", u.Email)
		assert.Nil(t, u.LockedUntil)
	})

	t.Run("missing user yields ErrNotFound", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
			WithArgs("ghost").
			WillReturnRows(userRows())

		_, err := repo.GetByID(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserRepository_Quarantine(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)

	t.Run("sets lock and logout watermark", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(until, now, model.ReasonMassExport, "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Quarantine(context.Background(), "user-1", model.ReasonMassExport, until, now))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user yields ErrNotFound", func(t *testing.T) {
		repo, mock := newMockUserRepo(t)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(until, now, model.ReasonMassExport, "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Quarantine(context.Background(), "ghost", model.ReasonMassExport, until, now), ErrNotFound)
	})
}

func TestUserRepository_ReleaseQuarantine(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	repo, mock := newMockUserRepo(t)
	mock.ExpectExec(`UPDATE users`).
		WithArgs(now, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseQuarantine(context.Background(), "user-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ListQuarantined(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	lockedUntil := now.Add(20 * time.Minute)
	reason := model.ReasonMassExport

	repo, mock := newMockUserRepo(t)
	mock.ExpectQuery(`WHERE locked_until > \$1 ORDER BY locked_until DESC`).
		WithArgs(now).
		WillReturnRows(userRows(model.User{
			ID: "user-1", Email: "ops@example.com", Role: "supervisor",
			Status: model.UserStatusActive, LockedUntil: &lockedUntil,
			ForceLogoutAfter: &now, QuarantineReason: &reason,
		}))

	users, err := repo.ListQuarantined(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "user-1", users[0].ID)
	require.NotNil(t, users[0].QuarantineReason)
	assert.Equal(t, model.ReasonMassExport, *users[0].QuarantineReason)
}
