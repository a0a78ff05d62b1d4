package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/token"
	"fleet-management/backend/internal/user/domain"
)

// RefreshCookieName is the cookie holding the refresh token.
const RefreshCookieName = "refreshToken"

const bearerPrefix = "bearer "

// AuthError is a guard rejection. Message is the only text the caller sees.
type AuthError struct {
	Reason  string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

var (
	ErrAccessTokenMissing  = &AuthError{Reason: "access_token_missing", Message: "access token missing"}
	ErrAccessTokenInvalid  = &AuthError{Reason: "access_token_invalid", Message: "access token invalid"}
	ErrRefreshTokenMissing = &AuthError{Reason: "refresh_token_missing", Message: "refresh token missing"}
	ErrInvalidSession      = &AuthError{Reason: "invalid_session", Message: "invalid session"}
	// ErrUnauthorized covers infrastructure failures during authentication.
	ErrUnauthorized = &AuthError{Reason: "unauthorized", Message: "Unauthorized"}
)

// TokenVerifier is the part of the token service the guard needs.
type TokenVerifier interface {
	VerifyAccessToken(tok string) (string, error)
	VerifyRefreshToken(ctx context.Context, tok string) (string, error)
	VerifyRefreshTokenHash(tok, expectedHash string) (string, error)
}

// UserLookup resolves the access token subject. Returns (nil, nil) when the user does not exist.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Guard authenticates protected requests. Both the access token and the refresh cookie must be
// valid and belong to the same user.
type Guard struct {
	tokens   TokenVerifier
	users    UserLookup
	metrics  *metrics.Metrics
	userHash bool
}

// NewGuard returns a Guard. m may be nil.
func NewGuard(tokens TokenVerifier, users UserLookup, m *metrics.Metrics) *Guard {
	return &Guard{tokens: tokens, users: users, metrics: m}
}

// WithUserHash makes the guard check the refresh cookie against the hash loaded with the user
// row instead of reading the session store. Use it when the users table is the session store.
func (g *Guard) WithUserHash() *Guard {
	g.userHash = true
	return g
}

// Authenticate runs the checks in order and stops at the first failure. authorization is the raw
// Authorization header; refreshCookie is the refreshToken cookie value. Every error is an *AuthError.
func (g *Guard) Authenticate(ctx context.Context, authorization, refreshCookie string) (*domain.User, error) {
	access := extractBearer(authorization)
	if access == "" {
		return nil, g.reject(ErrAccessTokenMissing)
	}
	userID, err := g.tokens.VerifyAccessToken(access)
	if err != nil {
		return nil, g.reject(ErrAccessTokenInvalid)
	}
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("guard: user lookup failed")
		return nil, g.reject(ErrUnauthorized)
	}
	if u == nil {
		return nil, g.reject(ErrAccessTokenInvalid)
	}
	if refreshCookie == "" {
		return nil, g.reject(ErrRefreshTokenMissing)
	}
	if g.userHash {
		refreshSubject, err := g.tokens.VerifyRefreshTokenHash(refreshCookie, u.RefreshTokenHash)
		if err != nil || refreshSubject != u.ID {
			return nil, g.reject(ErrInvalidSession)
		}
		return u, nil
	}
	refreshSubject, err := g.tokens.VerifyRefreshToken(ctx, refreshCookie)
	if err != nil {
		if !errors.Is(err, token.ErrUnauthorized) {
			zerolog.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("guard: session lookup failed")
			return nil, g.reject(ErrUnauthorized)
		}
		return nil, g.reject(ErrInvalidSession)
	}
	if refreshSubject != u.ID {
		return nil, g.reject(ErrInvalidSession)
	}
	return u, nil
}

func (g *Guard) reject(e *AuthError) error {
	g.metrics.RecordGuardRejection(e.Reason)
	return e
}

// RequireAuth is the gin adapter: it answers 401 {"message": ...} on failure and otherwise
// attaches the user to the request context.
func (g *Guard) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(RefreshCookieName)
		u, err := g.Authenticate(c.Request.Context(), c.GetHeader("Authorization"), cookie)
		if err != nil {
			msg := ErrUnauthorized.Message
			var ae *AuthError
			if errors.As(err, &ae) {
				msg = ae.Message
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
			return
		}
		setRequestContext(c, WithUser(c.Request.Context(), u))
		c.Next()
	}
}

// extractBearer returns the Bearer token from an Authorization header, or "" if missing or malformed.
// The scheme is matched case-insensitively.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
