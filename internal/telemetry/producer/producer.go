// Package producer ships auth events to Kafka.
package producer

import "fleet-management/backend/internal/telemetry"

// Producer emits auth events to a broker. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close flushes pending writes and releases resources. Safe to call if already closed.
	Close() error
}
