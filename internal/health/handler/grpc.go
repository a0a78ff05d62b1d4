package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultProbeInterval is how often Monitor re-runs the readiness checks.
const DefaultProbeInterval = 10 * time.Second

// Monitor keeps the gRPC health status of the server ("" service) in step with Checker.
type Monitor struct {
	checker *Checker
	server  *health.Server
	log     zerolog.Logger
}

// NewMonitor returns a Monitor whose health server starts NOT_SERVING until the first probe.
func NewMonitor(checker *Checker, log zerolog.Logger) *Monitor {
	s := health.NewServer()
	s.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{checker: checker, server: s, log: log}
}

// Server is the grpc.health.v1.Health implementation to register.
func (m *Monitor) Server() healthpb.HealthServer { return m.server }

// Probe runs the checks once and publishes the result.
func (m *Monitor) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := m.checker.Check(ctx); err != nil {
		m.log.Warn().Err(err).Msg("health probe failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", status)
	return status
}

// Run probes every interval until ctx is done, then marks every service NOT_SERVING.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m.Probe(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}
