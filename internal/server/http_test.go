package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithandler "fleet-management/backend/internal/audit/handler"
	healthhandler "fleet-management/backend/internal/health/handler"
	identityhandler "fleet-management/backend/internal/identity/handler"
	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/platform/rbac"
	"fleet-management/backend/internal/server/middleware"
	vehiclehandler "fleet-management/backend/internal/vehicle/handler"
)

func init() { gin.SetMode(gin.TestMode) }

func deny(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": middleware.ErrAccessTokenMissing.Message})
}

func newTestRouter(t *testing.T, buf *bytes.Buffer) *gin.Engine {
	t.Helper()
	authz, err := rbac.NewAuthorizer(context.Background())
	require.NoError(t, err)
	return NewRouter(Deps{
		Log:       zerolog.New(buf),
		Metrics:   metrics.New(),
		Auth:      deny,
		Checker:   authz,
		Identity:  identityhandler.NewHandler(nil, identityhandler.CookieConfig{}),
		Vehicles:  vehiclehandler.NewHandler(nil),
		AuditLogs: audithandler.NewHandler(nil),
		Health:    healthhandler.NewHTTPHandler(healthhandler.NewChecker(nil, authz)),
	})
}

func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t, &bytes.Buffer{})
	var got []string
	for _, ri := range r.Routes() {
		got = append(got, ri.Method+" "+ri.Path)
	}
	sort.Strings(got)
	want := []string{
		"DELETE /api/v1/vehicles/:id",
		"DELETE /api/v1/vehicles/:id/driver",
		"GET /api/v1/audit-logs",
		"GET /api/v1/auth/profile",
		"GET /api/v1/vehicles",
		"GET /api/v1/vehicles/:id",
		"GET /health",
		"GET /metrics",
		"GET /ready",
		"PATCH /api/v1/auth/change-password",
		"PATCH /api/v1/auth/profile",
		"PATCH /api/v1/vehicles/:id",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/refresh",
		"POST /api/v1/auth/register",
		"POST /api/v1/vehicles",
		"POST /api/v1/vehicles/:id/driver",
	}
	assert.Equal(t, want, got)
}

func TestNewRouter_ProtectedRoutesUseAuth(t *testing.T) {
	r := newTestRouter(t, &bytes.Buffer{})
	for _, path := range []string{"/api/v1/vehicles", "/api/v1/audit-logs", "/api/v1/auth/profile"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"message":"access token missing"}`, rec.Body.String(), path)
	}
}

func TestNewRouter_RequestIDAndLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newTestRouter(t, buf)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "/api/v1/vehicles", line["route"])
	assert.EqualValues(t, http.StatusUnauthorized, line["status"])
}

func TestNewRouter_ProbesAndNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newTestRouter(t, buf)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Empty(t, buf.String(), "probes are not logged")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Not Found"}`, rec.Body.String())
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	r := newTestRouter(t, &bytes.Buffer{})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())
}

func TestNewRouter_OptionalHandlers(t *testing.T) {
	r := NewRouter(Deps{Log: zerolog.Nop()})
	assert.Empty(t, r.Routes())
}
