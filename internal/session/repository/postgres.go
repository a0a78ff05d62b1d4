package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"fleet-management/backend/internal/db"
)

// PostgresStore keeps the refresh-token hash on the users row (users.refresh_token_hash).
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore returns a Store backed by the users table.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) RefreshTokenHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(refresh_token_hash, '') FROM users WHERE id = $1`, userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", oops.Code("SESSION_GET_FAILED").With("user_id", userID).Wrap(err)
	}
	return hash, nil
}

func (s *PostgresStore) SetRefreshTokenHash(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET refresh_token_hash = $2, updated_at = now() WHERE id = $1`, userID, hash)
	if err != nil {
		return oops.Code("SESSION_SET_FAILED").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownUser
	}
	return nil
}

func (s *PostgresStore) ClearRefreshTokenHash(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET refresh_token_hash = NULL, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return oops.Code("SESSION_CLEAR_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}
