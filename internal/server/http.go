// Package server assembles the HTTP router and the gRPC probe server.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fleet-management/backend/internal/audit"
	audithandler "fleet-management/backend/internal/audit/handler"
	healthhandler "fleet-management/backend/internal/health/handler"
	identityhandler "fleet-management/backend/internal/identity/handler"
	"fleet-management/backend/internal/metrics"
	"fleet-management/backend/internal/platform/rbac"
	"fleet-management/backend/internal/server/middleware"
	vehiclehandler "fleet-management/backend/internal/vehicle/handler"
)

// APIPrefix is the mount point of the versioned API. Probes and /metrics live outside it.
const APIPrefix = "/api/v1"

// Deps holds what the router mounts. Nil handlers are not mounted.
type Deps struct {
	Log     zerolog.Logger
	Metrics *metrics.Metrics
	// Auth guards every protected route (Guard.RequireAuth).
	Auth    gin.HandlerFunc
	Checker rbac.Checker
	Audit   audit.AuditLogger

	Identity  *identityhandler.Handler
	Vehicles  *vehiclehandler.Handler
	AuditLogs *audithandler.Handler
	Health    *healthhandler.HTTPHandler
}

// NewRouter builds the gin engine with request id, logging and panic recovery on every route.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(d.Log, d.Metrics), middleware.Recovery())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
	})

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Health != nil {
		d.Health.Register(r)
	}

	api := r.Group(APIPrefix)
	if d.Identity != nil {
		d.Identity.Register(api, d.Auth)
	}
	if d.Vehicles != nil {
		d.Vehicles.Register(api, d.Auth, d.Checker, d.Audit)
	}
	if d.AuditLogs != nil {
		d.AuditLogs.Register(api, d.Auth, d.Checker)
	}
	return r
}

// NewHTTPServer wraps h with the timeouts the API is served with.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
