package repository

import (
	"context"

	"fleet-management/backend/internal/audit/domain"
)

// ListFilter narrows List. Zero values mean no filter; Limit <= 0 uses DefaultLimit.
type ListFilter struct {
	UserID   string
	Action   string
	Resource string
	Limit    int
	Offset   int
}

// DefaultLimit and MaxLimit bound List page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	List(ctx context.Context, f ListFilter) ([]*domain.AuditLog, error)
}
