// Package handler exposes the audit trail over HTTP for administrators.
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"fleet-management/backend/internal/audit/domain"
	"fleet-management/backend/internal/audit/repository"
	"fleet-management/backend/internal/platform/rbac"
	"fleet-management/backend/internal/server/response"
)

// Lister reads audit logs.
type Lister interface {
	List(ctx context.Context, f repository.ListFilter) ([]*domain.AuditLog, error)
}

type Handler struct {
	logs Lister
}

func NewHandler(logs Lister) *Handler {
	return &Handler{logs: logs}
}

// Register mounts GET /audit-logs on r behind auth and the audit:read permission.
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc, checker rbac.Checker) {
	r.GET("/audit-logs", auth, rbac.RequireRole(checker, rbac.AuditRead), h.list)
}

type listQuery struct {
	UserID   string `form:"user_id"`
	Action   string `form:"action"`
	Resource string `form:"resource"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

func (h *Handler) list(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindingError(c, err)
		return
	}
	logs, err := h.logs.List(c.Request.Context(), repository.ListFilter{
		UserID:   q.UserID,
		Action:   q.Action,
		Resource: q.Resource,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		response.Internal(c, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	response.List(c, logs, len(logs))
}
