package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleet-management/backend/internal/audit"
	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/security"
	"fleet-management/backend/internal/telemetry"
	"fleet-management/backend/internal/token"
	userdomain "fleet-management/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("an account with this email already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid session")
	ErrUserNotFound           = errors.New("user not found")
	// ErrValidation wraps every input rule violation.
	ErrValidation   = errors.New("validation failed")
	ErrSamePassword = fmt.Errorf("%w: new password must be different from the current password", ErrValidation)
)

const passwordSymbols = "@$!%*?&"

var tracer = otel.Tracer("fleet-management/backend/internal/identity/service")

// AuthResult is the outcome of Register (User and access token only), Login and Refresh.
// RefreshToken is the plaintext for the cookie; it never goes into a response body.
type AuthResult struct {
	User             *userdomain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

// UpdateProfileInput is a partial profile update; nil fields are left unchanged.
type UpdateProfileInput struct {
	Name  *string
	Email *string
	Phone *string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateProfile(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionStore clears the single refresh-token session of a user.
type SessionStore interface {
	ClearRefreshTokenHash(ctx context.Context, userID string) error
}

// AuthService implements register, login, refresh, change-password, logout and the profile operations.
type AuthService struct {
	users    UserRepo
	sessions SessionStore
	hasher   *security.Hasher
	tokens   *token.Service
	audit    audit.AuditLogger
	events   telemetry.EventEmitter
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewAuthService returns an AuthService. auditLogger, events and m may be nil.
func NewAuthService(
	users UserRepo,
	sessions SessionStore,
	hasher *security.Hasher,
	tokens *token.Service,
	auditLogger audit.AuditLogger,
	events telemetry.EventEmitter,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		audit:    auditLogger,
		events:   events,
		metrics:  m,
		now:      time.Now,
	}
}

// lifecycle names what an operation records: metric label, audit actions and event types.
// Empty failure fields mean failures are only counted.
type lifecycle struct {
	op         string
	resource   string
	action     string
	failAction string
	event      string
	failEvent  string
	spanName   string
}

var (
	registerOp       = lifecycle{op: "register", resource: audit.ResourceAuth, action: audit.ActionRegister, event: telemetry.EventUserRegistered, spanName: "auth.Register"}
	loginOp          = lifecycle{op: "login", resource: audit.ResourceAuth, action: audit.ActionLogin, failAction: audit.ActionLoginFailed, event: telemetry.EventLogin, failEvent: telemetry.EventLoginFailed, spanName: "auth.Login"}
	refreshOp        = lifecycle{op: "refresh", resource: audit.ResourceAuth, action: audit.ActionRefresh, failAction: audit.ActionRefreshFailed, event: telemetry.EventTokenRefreshed, failEvent: telemetry.EventTokenRefreshFailed, spanName: "auth.Refresh"}
	logoutOp         = lifecycle{op: "logout", resource: audit.ResourceAuth, action: audit.ActionLogout, event: telemetry.EventLogout, spanName: "auth.Logout"}
	changePasswordOp = lifecycle{op: "change_password", resource: audit.ResourceUser, action: audit.ActionPasswordChanged, event: telemetry.EventPasswordChanged, spanName: "auth.ChangePassword"}
	updateProfileOp  = lifecycle{op: "update_profile", resource: audit.ResourceUser, action: audit.ActionProfileUpdated, spanName: "auth.UpdateProfile"}
)

func (s *AuthService) start(ctx context.Context, lc lifecycle) (context.Context, trace.Span) {
	return tracer.Start(ctx, lc.spanName)
}

// finish ends span and records the outcome. Audit and event emission are best-effort.
func (s *AuthService) finish(ctx context.Context, span trace.Span, lc lifecycle, userID string, err error) {
	defer span.End()
	if userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}

	outcome := metrics.OutcomeSuccess
	action, event := lc.action, lc.event
	if err != nil {
		outcome = metrics.OutcomeFailure
		action, event = lc.failAction, lc.failEvent
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.RecordAuth(lc.op, outcome)
	if action != "" && s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, lc.resource, "")
	}
	if event != "" {
		telemetry.EmitAsync(ctx, s.events, telemetry.NewEvent(event, userID, outcome))
	}
}

// Register creates the user with a hashed password and returns it with an access token.
// No refresh token is issued; the user logs in separately.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	ctx, span := s.start(ctx, registerOp)
	var userID string
	defer func() { s.finish(ctx, span, registerOp, userID, err) }()

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         userdomain.RoleUser,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, userdomain.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	userID = u.ID

	access, err := s.tokens.IssueAccessToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, AccessToken: access.Token, AccessExpiresAt: access.ExpiresAt}, nil
}

// Login verifies the credentials and issues both tokens, replacing any existing session.
// An unknown email and a wrong password both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *AuthResult, err error) {
	ctx, span := s.start(ctx, loginOp)
	var userID string
	defer func() { s.finish(ctx, span, loginOp, userID, err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	userID = u.ID
	if !s.hasher.Verify(u.PasswordHash, []byte(password)) {
		return nil, ErrInvalidCredentials
	}
	return s.issuePair(ctx, u)
}

// Refresh verifies the presented refresh token and rotates the session: a new access token and
// a new refresh token are issued and the presented token stops working.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	ctx, span := s.start(ctx, refreshOp)
	var userID string
	defer func() { s.finish(ctx, span, refreshOp, userID, err) }()

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sub, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrUnauthorized) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	userID = sub
	u, err := s.users.GetByID(ctx, sub)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidRefreshToken
	}
	return s.issuePair(ctx, u)
}

func (s *AuthService) issuePair(ctx context.Context, u *userdomain.User) (*AuthResult, error) {
	access, err := s.tokens.IssueAccessToken(u.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:             u,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// ChangePassword replaces u's password and clears its refresh session, logging out every device.
func (s *AuthService) ChangePassword(ctx context.Context, u *userdomain.User, current, next string) (err error) {
	ctx, span := s.start(ctx, changePasswordOp)
	defer func() { s.finish(ctx, span, changePasswordOp, u.ID, err) }()

	if !s.hasher.Verify(u.PasswordHash, []byte(current)) {
		return ErrInvalidCredentials
	}
	if next == current {
		return ErrSamePassword
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(next))
	if err != nil {
		return err
	}
	// The session goes first: a failed clear leaves the old password in place, never an old
	// session alongside a new password.
	if err := s.sessions.ClearRefreshTokenHash(ctx, u.ID); err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hashed); err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Logout clears the user's refresh session. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, userID string) (err error) {
	ctx, span := s.start(ctx, logoutOp)
	defer func() { s.finish(ctx, span, logoutOp, userID, err) }()
	return s.sessions.ClearRefreshTokenHash(ctx, userID)
}

// Profile returns the user, or ErrUserNotFound.
func (s *AuthService) Profile(ctx context.Context, userID string) (*userdomain.User, error) {
	ctx, span := tracer.Start(ctx, "auth.Profile", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// UpdateProfile changes name, email and phone. Passwords never change through this path.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (res *userdomain.User, err error) {
	ctx, span := s.start(ctx, updateProfileOp)
	defer func() { s.finish(ctx, span, updateProfileOp, userID, err) }()

	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated := *u
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		updated.Name = name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		updated.Email = email
	}
	if in.Phone != nil {
		updated.Phone = strings.TrimSpace(*in.Phone)
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.users.UpdateProfile(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, userdomain.ErrEmailTaken):
			return nil, ErrEmailAlreadyRegistered
		case errors.Is(err, userdomain.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &updated, nil
}

// ValidatePassword enforces the password rule: at least 8 characters with a lowercase letter,
// an uppercase letter, a digit and one of @$!%*?&. Violations wrap ErrValidation.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	switch {
	case !hasLower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrValidation)
	case !hasUpper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrValidation)
	case !hasNumber:
		return fmt.Errorf("%w: password must contain at least one number", ErrValidation)
	case !hasSymbol:
		return fmt.Errorf("%w: password must contain at least one of %s", ErrValidation, passwordSymbols)
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}
