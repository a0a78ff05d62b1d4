// Package token issues and verifies the two token classes. Access tokens are stateless; a
// refresh token is only valid while its hash is the one recorded in the session store.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleet-management/backend/internal/security"
)

// ErrUnauthorized is the single outcome of every failed verification. Callers cannot tell a bad
// signature from an expired token or a superseded refresh token.
var ErrUnauthorized = errors.New("unauthorized")

// SessionStore is the session state the token service reads and writes.
type SessionStore interface {
	RefreshTokenHash(ctx context.Context, userID string) (string, error)
	SetRefreshTokenHash(ctx context.Context, userID, hash string) error
}

// Config is the per-class signing configuration. The secrets must differ.
type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
}

// Issued is a freshly signed token and its expiry.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Service issues, rotates and verifies access and refresh tokens.
type Service struct {
	codec    *security.TokenCodec
	sessions SessionStore
	cfg      Config
}

// NewService returns a Service. It fails when a secret is missing, the secrets are equal, or a TTL is not positive.
func NewService(codec *security.TokenCodec, sessions SessionStore, cfg Config) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, security.ErrEmptySecret
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}
	return &Service{codec: codec, sessions: sessions, cfg: cfg}, nil
}

// RefreshTTL is the refresh-token lifetime, used for the cookie Max-Age.
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccessToken signs an access token for userID. Nothing is persisted.
func (s *Service) IssueAccessToken(userID string) (Issued, error) {
	tok, exp, err := s.codec.Sign(userID, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return Issued{}, fmt.Errorf("sign access token: %w", err)
	}
	return Issued{Token: tok, ExpiresAt: exp}, nil
}

// IssueRefreshToken signs a refresh token and records its hash as the user's only session,
// replacing any previous one. The plaintext is returned and never stored. A store failure
// is returned as is; it is not an authentication failure.
func (s *Service) IssueRefreshToken(ctx context.Context, userID string) (Issued, error) {
	tok, exp, err := s.codec.Sign(userID, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return Issued{}, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.sessions.SetRefreshTokenHash(ctx, userID, security.HashRefreshToken(tok)); err != nil {
		return Issued{}, fmt.Errorf("store refresh token hash: %w", err)
	}
	return Issued{Token: tok, ExpiresAt: exp}, nil
}

// VerifyAccessToken returns the subject of a valid access token, or ErrUnauthorized.
func (s *Service) VerifyAccessToken(tok string) (string, error) {
	sub, err := s.codec.Verify(tok, s.cfg.AccessSecret)
	if err != nil {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// VerifyRefreshToken checks signature and expiry, then requires the token's hash to equal the
// hash currently stored for its subject. Returns the subject or ErrUnauthorized. Only a
// session store read failure yields a different error.
func (s *Service) VerifyRefreshToken(ctx context.Context, tok string) (string, error) {
	sub, err := s.codec.Verify(tok, s.cfg.RefreshSecret)
	if err != nil {
		return "", ErrUnauthorized
	}
	stored, err := s.sessions.RefreshTokenHash(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("load refresh token hash: %w", err)
	}
	if !security.RefreshTokenHashEqual(tok, stored) {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// VerifyRefreshTokenHash is VerifyRefreshToken against a hash the caller already holds
// (e.g. loaded with the user row), so no store round trip is made.
func (s *Service) VerifyRefreshTokenHash(tok, expectedHash string) (string, error) {
	sub, err := s.codec.Verify(tok, s.cfg.RefreshSecret)
	if err != nil {
		return "", ErrUnauthorized
	}
	if !security.RefreshTokenHashEqual(tok, expectedHash) {
		return "", ErrUnauthorized
	}
	return sub, nil
}
