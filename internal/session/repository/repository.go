// Package repository stores the single active session of each user: the hash of the one
// refresh token that may still be exchanged.
package repository

import (
	"context"
	"errors"
)

// ErrUnknownUser is returned when setting a hash for a user that does not exist.
var ErrUnknownUser = errors.New("session: unknown user")

// Store holds at most one refresh-token hash per user. Setting a hash replaces the previous one.
type Store interface {
	// RefreshTokenHash returns the stored hash, or "" when the user has no active session.
	RefreshTokenHash(ctx context.Context, userID string) (string, error)
	SetRefreshTokenHash(ctx context.Context, userID, hash string) error
	// ClearRefreshTokenHash removes the stored hash. Clearing an absent session is not an error.
	ClearRefreshTokenHash(ctx context.Context, userID string) error
}
