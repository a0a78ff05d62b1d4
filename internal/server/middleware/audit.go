package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-management/backend/internal/audit"
)

// Audit records an audit entry after every successful mutating request made by an authenticated
// user (POST, PUT, PATCH, DELETE with status < 400). Reads are not audited. The :id route
// parameter, when present, is stored as metadata. Best-effort: it never changes the response.
func Audit(logger audit.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if logger == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		u, ok := CurrentUser(c)
		if !ok {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, c.FullPath())
		meta := ""
		if id := c.Param("id"); id != "" {
			meta = "id=" + id
		}
		logger.LogEvent(c.Request.Context(), u.ID, ar.Action, ar.Resource, meta)
	}
}
