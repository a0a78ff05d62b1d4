package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-management/backend/internal/audit"
	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/security"
	"fleet-management/backend/internal/telemetry"
	"fleet-management/backend/internal/token"
	userdomain "fleet-management/backend/internal/user/domain"
)

const testPassword = "Passw0rd!"

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[email]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return userdomain.ErrEmailTaken
	}
	c := *u
	r.byID[u.ID] = &c
	r.byEmail[u.Email] = &c
	return nil
}

func (r *memUserRepo) UpdateProfile(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[u.ID]
	if !ok {
		return userdomain.ErrNotFound
	}
	if other, ok := r.byEmail[u.Email]; ok && other.ID != u.ID {
		return userdomain.ErrEmailTaken
	}
	delete(r.byEmail, old.Email)
	c := *old
	c.Name, c.Email, c.Phone, c.UpdatedAt = u.Name, u.Email, u.Phone, u.UpdatedAt
	r.byID[u.ID] = &c
	r.byEmail[c.Email] = &c
	return nil
}

func (r *memUserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return userdomain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	hashes map[string]string
}

func (s *memSessions) RefreshTokenHash(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[userID], nil
}

func (s *memSessions) SetRefreshTokenHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[userID] = hash
	return nil
}

func (s *memSessions) ClearRefreshTokenHash(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, userID)
	return nil
}

func (s *memSessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

type auditEntry struct{ userID, action string }

type memAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *memAudit) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{userID, action})
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.action)
	}
	return out
}

type memEmitter struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (e *memEmitter) Emit(ctx context.Context, ev *telemetry.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, *ev)
	return nil
}

func (e *memEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc      *AuthService
	users    *memUserRepo
	sessions *memSessions
	tokens   *token.Service
	audit    *memAudit
	events   *memEmitter
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := newMemUserRepo()
	sessions := &memSessions{hashes: map[string]string{}}
	tokens, err := token.NewService(security.NewTokenCodec(), sessions, token.Config{
		AccessSecret:  []byte("access-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret"),
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	f := &fixture{users: users, sessions: sessions, tokens: tokens, audit: &memAudit{}, events: &memEmitter{}, metrics: metrics.New()}
	f.svc = NewAuthService(users, sessions, security.NewHasher(4), tokens, f.audit, f.events, f.metrics)
	return f
}

func (f *fixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Name: "Alice", Password: testPassword})
	require.NoError(t, err)
	return res
}

func TestAuthService_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "a@b.com")
	require.NotNil(t, reg.User)
	assert.NotEmpty(t, reg.AccessToken)
	assert.Empty(t, reg.RefreshToken, "register issues no refresh token")
	assert.Zero(t, f.sessions.count())
	stored, _ := f.users.GetByID(ctx, reg.User.ID)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.Equal(t, userdomain.RoleUser, stored.Role)

	sub, err := f.tokens.VerifyAccessToken(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sub)

	login, err := f.svc.Login(ctx, "a@b.com", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@b.com", "Wrong0ne!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, errUnknown := f.svc.Login(ctx, "nobody@b.com", testPassword)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, err.Error(), errUnknown.Error(), "no user enumeration through the message")

	rotated, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, token.ErrUnauthorized, "predecessor is revoked")
	_, err = f.tokens.VerifyRefreshToken(ctx, rotated.RefreshToken)
	assert.NoError(t, err)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	assert.Equal(t, []string{
		audit.ActionRegister, audit.ActionLogin, audit.ActionLoginFailed, audit.ActionLoginFailed,
		audit.ActionRefresh, audit.ActionRefreshFailed,
	}, f.audit.actions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AuthOperations.WithLabelValues("login", metrics.OutcomeFailure)))
	assert.Eventually(t, func() bool { return len(f.events.types()) == 6 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, f.events.types(), telemetry.EventLoginFailed)
	assert.Contains(t, f.events.types(), telemetry.EventTokenRefreshFailed)
	assert.Equal(t, 1, countOf(f.events.types(), telemetry.EventTokenRefreshed), "only the successful refresh")
}

func countOf(xs []string, x string) int {
	n := 0
	for _, v := range xs {
		if v == x {
			n++
		}
	}
	return n
}

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@b.com")

	_, err := f.svc.Register(ctx, RegisterInput{Email: " A@B.com ", Name: "Other", Password: testPassword})
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered, "emails are normalized before the lookup")

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Name: "A", Password: testPassword}},
		{"no name", RegisterInput{Email: "c@d.com", Name: "  ", Password: testPassword}},
		{"weak password", RegisterInput{Email: "c@d.com", Name: "A", Password: "password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@b.com")
	login, err := f.svc.Login(ctx, "a@b.com", testPassword)
	require.NoError(t, err)
	u, _ := f.users.GetByID(ctx, reg.User.ID)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u, "Wrong0ne!", "N3wPass!x"), ErrInvalidCredentials)
	err = f.svc.ChangePassword(ctx, u, testPassword, testPassword)
	assert.ErrorIs(t, err, ErrSamePassword)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u, testPassword, "short"), ErrValidation)

	// still logged in after the failed attempts
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, u, testPassword, "N3wPass!x"))
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, token.ErrUnauthorized)
	assert.Zero(t, f.sessions.count())

	_, err = f.svc.Login(ctx, "a@b.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@b.com", "N3wPass!x")
	assert.NoError(t, err)
}

// failingClear is a session store whose clear always fails.
type failingClear struct {
	*memSessions
	err error
}

func (s failingClear) ClearRefreshTokenHash(context.Context, string) error { return s.err }

func TestAuthService_ChangePassword_SessionClearFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@b.com")
	login, err := f.svc.Login(ctx, "a@b.com", testPassword)
	require.NoError(t, err)
	u, _ := f.users.GetByID(ctx, reg.User.ID)

	storeDown := errors.New("store down")
	svc := NewAuthService(f.users, failingClear{memSessions: f.sessions, err: storeDown}, security.NewHasher(4), f.tokens, nil, nil, nil)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u, testPassword, "N3wPass!x"), storeDown)

	// nothing changed: the old password still works and the new one does not
	_, err = f.svc.Login(ctx, "a@b.com", "N3wPass!x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	stored, _ := f.users.GetByID(ctx, reg.User.ID)
	assert.True(t, security.NewHasher(4).Verify(stored.PasswordHash, []byte(testPassword)))
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	assert.NoError(t, err, "the session is untouched along with the password")
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@b.com")
	login, err := f.svc.Login(ctx, "a@b.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID))
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, token.ErrUnauthorized)
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, f.svc.Logout(ctx, reg.User.ID), "logout is idempotent")
}

func TestAuthService_Refresh_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// an access token is not a refresh token
	reg := f.register(t, "a@b.com")
	_, err = f.svc.Refresh(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// a valid token whose user was deleted
	ghost, err := f.tokens.IssueRefreshToken(ctx, "ghost")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, ghost.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestAuthService_ConcurrentRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@b.com")
	login, err := f.svc.Login(ctx, "a@b.com", testPassword)
	require.NoError(t, err)

	const n = 2
	var wg sync.WaitGroup
	results := make([]*AuthResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Refresh(ctx, login.RefreshToken)
		}()
	}
	wg.Wait()

	usable := 0
	for i := range n {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], ErrInvalidRefreshToken)
			continue
		}
		if _, err := f.tokens.VerifyRefreshToken(ctx, results[i].RefreshToken); err == nil {
			usable++
		}
	}
	assert.Equal(t, 1, usable, "exactly one refresh token survives")
	assert.Equal(t, 1, f.sessions.count())
	_, err = f.tokens.VerifyRefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestAuthService_Profile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@b.com")
	f.register(t, "c@d.com")

	u, err := f.svc.Profile(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)
	_, err = f.svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	name, phone := " Alice B ", "+100"
	u, err = f.svc.UpdateProfile(ctx, a.User.ID, UpdateProfileInput{Name: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.Name)
	assert.Equal(t, "+100", u.Phone)
	assert.Equal(t, "a@b.com", u.Email)

	taken := "C@D.com"
	_, err = f.svc.UpdateProfile(ctx, a.User.ID, UpdateProfileInput{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)

	bad := "nope"
	_, err = f.svc.UpdateProfile(ctx, a.User.ID, UpdateProfileInput{Email: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateProfile(ctx, "missing", UpdateProfileInput{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthService_NilCollaborators(t *testing.T) {
	users := newMemUserRepo()
	sessions := &memSessions{hashes: map[string]string{}}
	tokens, err := token.NewService(security.NewTokenCodec(), sessions, token.Config{
		AccessSecret: []byte("a"), AccessTTL: time.Minute, RefreshSecret: []byte("r"), RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	svc := NewAuthService(users, sessions, security.NewHasher(4), tokens, nil, nil, nil)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Name: "A", Password: testPassword})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), "a@b.com", testPassword)
	require.NoError(t, err)
}

func TestValidatePassword(t *testing.T) {
	for _, ok := range []string{"Passw0rd!", "aB3$aaaa", "Zz9&complex-password"} {
		assert.NoError(t, ValidatePassword(ok), ok)
	}
	for _, bad := range []string{"", "Pa0!", "password1!", "PASSWORD1!", "Password!!", "Password12", "Passw0rd#"} {
		err := ValidatePassword(bad)
		assert.True(t, errors.Is(err, ErrValidation), "%q: %v", bad, err)
	}
}
