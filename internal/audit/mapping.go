package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP method and route pattern.
type ActionResource struct {
	Action   string
	Resource string
}

// Driver assignment overrides: audited as driver_assigned and driver_unassigned on resource "vehicle".
const driverRoute = "/api/v1/vehicles/:id/driver"

// ParseRoute returns action and resource for a method and gin route pattern
// (e.g. GET /api/v1/vehicles/:id). Action is a verb: get, list, create, update, delete.
// Resource is the first path segment after the API prefix, singular and snake_case
// (vehicles -> vehicle, audit-logs -> audit_log).
func ParseRoute(method, route string) ActionResource {
	if route == driverRoute {
		switch method {
		case http.MethodPost:
			return ActionResource{Action: "driver_assigned", Resource: "vehicle"}
		case http.MethodDelete:
			return ActionResource{Action: "driver_unassigned", Resource: "vehicle"}
		}
	}
	path := strings.TrimPrefix(route, "/api/v1")
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := segmentToResource(segments[0])
	hasID := len(segments) > 1 && strings.HasPrefix(segments[1], ":")
	return ActionResource{Action: methodToAction(method, hasID), Resource: resource}
}

func segmentToResource(seg string) string {
	s := strings.ReplaceAll(seg, "-", "_")
	s = strings.TrimSuffix(s, "s")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}

func methodToAction(method string, hasID bool) string {
	switch method {
	case http.MethodGet:
		if hasID {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
