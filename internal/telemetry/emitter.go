// Package telemetry defines auth lifecycle events and the emitters that ship them
// (Kafka for downstream consumers, OTel logs for the collector).
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Auth lifecycle event types.
const (
	EventUserRegistered     = "user.registered"
	EventLogin              = "auth.login"
	EventLoginFailed        = "auth.login_failed"
	EventTokenRefreshed     = "auth.token_refreshed"
	EventTokenRefreshFailed = "auth.token_refresh_failed"
	EventLogout             = "auth.logout"
	EventPasswordChanged    = "auth.password_changed"
)

// Event is one auth lifecycle event. It never carries passwords or tokens.
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	Outcome    string            `json:"outcome"`
	Source     string            `json:"source"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewEvent returns an event stamped with the current UTC time and the "api" source.
func NewEvent(eventType, userID, outcome string) *Event {
	return &Event{
		Type:       eventType,
		UserID:     userID,
		Outcome:    outcome,
		Source:     "api",
		OccurredAt: time.Now().UTC(),
	}
}

// EventEmitter emits auth events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

type multiEmitter []EventEmitter

// Multi fans an event out to every non-nil emitter. Returns nil when no emitter is left.
func Multi(emitters ...EventEmitter) EventEmitter {
	var out multiEmitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m multiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
