package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"fleet-management/backend/internal/user/domain"
)

type contextKey struct{ name string }

var (
	userKey      = contextKey{"user"}
	clientIPKey  = contextKey{"client_ip"}
	requestIDKey = contextKey{"request_id"}
)

// WithUser returns a context carrying the authenticated user. Handlers read it via UserFromContext.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user and true if set; otherwise nil, false.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok && u != nil
}

// CurrentUser is UserFromContext for a gin request.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	return UserFromContext(c.Request.Context())
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP recorded on ctx, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func setRequestContext(c *gin.Context, ctx context.Context) {
	c.Request = c.Request.WithContext(ctx)
}
