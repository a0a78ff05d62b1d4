package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"fleet-management/backend/internal/audit/domain"
	"fleet-management/backend/internal/db"
)

type PostgresRepository struct {
	pool db.Pool
}

// NewPostgresRepository returns an audit log repository that uses the given pool for persistence.
func NewPostgresRepository(pool db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, nullable(a.UserID), a.Action, a.Resource, a.IP, nullable(a.Metadata), a.CreatedAt)
	if err != nil {
		return oops.Code("AUDIT_CREATE_FAILED").With("action", a.Action).With("resource", a.Resource).Wrap(err)
	}
	return nil
}

// List returns audit logs newest first, filtered and paginated by f.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("user_id", f.UserID)
	add("action", f.Action)
	add("resource", f.Resource)

	q := `SELECT id, COALESCE(user_id, ''), action, resource, ip, COALESCE(metadata, ''), created_at FROM audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := max(f.Offset, 0)
	args = append(args, limit, offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").Wrap(err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").Wrap(err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
