// Package rbac decides which role may perform which action. The rules live in an embedded Rego
// policy evaluated in process by OPA.
package rbac

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"fleet-management/backend/internal/user/domain"
)

// Action is a permission checked against the policy, formatted resource:verb.
type Action string

const (
	VehicleCreate         Action = "vehicle:create"
	VehicleRead           Action = "vehicle:read"
	VehicleUpdate         Action = "vehicle:update"
	VehicleDelete         Action = "vehicle:delete"
	VehicleAssignDriver   Action = "vehicle:assign_driver"
	VehicleUnassignDriver Action = "vehicle:unassign_driver"
	AuditRead             Action = "audit:read"
)

const allowQuery = "data.fleet.authz.allow"

//go:embed policy.rego
var defaultPolicy string

// Authorizer evaluates the prepared policy query. Safe for concurrent use.
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// NewAuthorizer compiles the embedded policy.
func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	return NewAuthorizerWithPolicy(ctx, defaultPolicy)
}

// NewAuthorizerWithPolicy compiles policy, which must define data.fleet.authz.allow.
func NewAuthorizerWithPolicy(ctx context.Context, policy string) (*Authorizer, error) {
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Module("fleet_authz.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	return &Authorizer{query: q}, nil
}

// Allow reports whether role may perform action. Anything other than a boolean true denies.
func (a *Authorizer) Allow(ctx context.Context, role domain.Role, action Action) (bool, error) {
	input := map[string]any{
		"role":   string(role),
		"action": string(action),
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval authz policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck evaluates the policy for a request that must be allowed. Returns nil on success.
func (a *Authorizer) HealthCheck(ctx context.Context) error {
	ok, err := a.Allow(ctx, domain.RoleAdmin, VehicleRead)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("authz policy denied the admin probe")
	}
	return nil
}
