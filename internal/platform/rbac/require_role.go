package rbac

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/server/middleware"
	"fleet-management/backend/internal/user/domain"
)

// Checker is the decision point RequireRole consults.
type Checker interface {
	Allow(ctx context.Context, role domain.Role, action Action) (bool, error)
}

// RequireRole answers 403 when the authenticated user's role may not perform action, and 401 when
// no user is on the context (RequireAuth must run first). Evaluation errors deny.
func RequireRole(checker Checker, action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": middleware.ErrUnauthorized.Message})
			return
		}
		allowed, err := checker.Allow(c.Request.Context(), u.Role, action)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).
				Str("role", string(u.Role)).
				Str("action", string(action)).
				Msg("rbac: policy evaluation failed")
		}
		if err != nil || !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		c.Next()
	}
}
