package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/audit/domain"
	auditrepo "fleet-management/backend/internal/audit/repository"
)

// Actions recorded by the auth lifecycle.
const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionRefresh         = "refresh"
	ActionRefreshFailed   = "refresh_failed"
	ActionLogout          = "logout"
	ActionPasswordChanged = "password_changed"
	ActionProfileUpdated  = "profile_updated"

	ResourceAuth = "auth"
	ResourceUser = "user"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by auth code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent writes one audit log entry. Errors are logged through the context logger and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := ""
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("action", action).
			Str("resource", resource).
			Msg("audit: failed to log event")
	}
}
