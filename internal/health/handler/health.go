// Package handler serves liveness and readiness over HTTP and the standard gRPC health service.
package handler

import (
	"context"
	"fmt"
	"time"
)

// Pinger reports whether the database is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker reports whether the authorization policy can be evaluated.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 2 * time.Second

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	timeout time.Duration
}

func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy, timeout: DefaultCheckTimeout}
}

// Check returns the first failing dependency.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.db != nil {
		if err := c.db.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}
