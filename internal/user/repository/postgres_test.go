package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-management/backend/internal/user/domain"
)

var userCols = []string{"id", "email", "name", "phone", "role", "password_hash", "refresh_token_hash", "created_at", "updated_at"}

func TestPostgresRepository_GetByID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      *domain.User
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
					WithArgs("u1").
					WillReturnRows(pgxmock.NewRows(userCols).
						AddRow("u1", "a@b.com", "Alice", "", "fleet_manager", "hash", "rt-hash", now, now))
			},
			want: &domain.User{
				ID: "u1", Email: "a@b.com", Name: "Alice", Role: domain.RoleFleetManager,
				PasswordHash: "hash", RefreshTokenHash: "rt-hash", CreatedAt: now, UpdatedAt: now,
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
					WithArgs("u1").
					WillReturnError(pgx.ErrNoRows)
			},
			want: nil,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
					WithArgs("u1").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresRepository(mock)
			got, err := repo.GetByID(context.Background(), "u1")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "connection refused")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("a@b.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u1", "a@b.com", "Alice", "+100", "user", "hash", "", now, now))

	repo := NewPostgresRepository(mock)
	u, err := repo.GetByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "+100", u.Phone)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Empty(t, u.RefreshTokenHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create(t *testing.T) {
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Email: "a@b.com", Name: "Alice", Role: domain.RoleUser, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}

	tests := []struct {
		name    string
		execErr error
		wantErr error
		anyErr  bool
	}{
		{name: "success"},
		{name: "duplicate email", execErr: &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, wantErr: domain.ErrEmailTaken},
		{name: "database error", execErr: errors.New("disk full"), anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			exp := mock.ExpectExec(`INSERT INTO users`).
				WithArgs("u1", "a@b.com", "Alice", nil, "user", "hash", now, now)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("INSERT", 1))
			}

			err = NewPostgresRepository(mock).Create(context.Background(), u)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrEmailTaken)
			default:
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_UpdateProfile(t *testing.T) {
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Email: "new@b.com", Name: "Alice B", Phone: "+1", UpdatedAt: now}

	t.Run("updated", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(`UPDATE users SET name = \$2, email = \$3, phone = \$4`).
			WithArgs("u1", "Alice B", "new@b.com", "+1", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewPostgresRepository(mock).UpdateProfile(context.Background(), u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(`UPDATE users SET name`).
			WithArgs("u1", "Alice B", "new@b.com", "+1", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		assert.ErrorIs(t, NewPostgresRepository(mock).UpdateProfile(context.Background(), u), domain.ErrNotFound)
	})

	t.Run("email taken", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		mock.ExpectExec(`UPDATE users SET name`).
			WithArgs("u1", "Alice B", "new@b.com", "+1", now).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
		assert.ErrorIs(t, NewPostgresRepository(mock).UpdateProfile(context.Background(), u), domain.ErrEmailTaken)
	})
}

func TestPostgresRepository_UpdatePasswordHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs("u1", "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs("gone", "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.UpdatePasswordHash(context.Background(), "u1", "new-hash"))
	assert.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), "gone", "new-hash"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
