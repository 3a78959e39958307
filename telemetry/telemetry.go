// Package telemetry provides gated event emission for suggestion tracking.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"
)

// Event names sent through the gate.
const (
	// EventSuggestionShown records that a suggestion was displayed.
	EventSuggestionShown = "suggestion_shown"
	// EventSuggestionAccepted records that the user accepted a suggestion.
	EventSuggestionAccepted = "suggestion_accepted"
	// EventSuggestionModified records how much the user edited an accepted
	// suggestion after the maturity window elapsed.
	EventSuggestionModified = "suggestion_modified"
)

// Fields holds the named values attached to an event.
type Fields map[string]any

// Event is a single telemetry record.
type Event struct {
	Name      string
	Fields    Fields
	DeviceID  string
	Timestamp time.Time
}

// Sink is the interface event consumers implement. Implementations must not
// block indefinitely; senders apply their own timeouts.
type Sink interface {
	Send(ctx context.Context, event Event)
}

// Gate wraps the global telemetry-enabled flag and the act of emitting a
// named event. The flag may be flipped at any time by the activation flow;
// reads are atomic and a briefly stale value is acceptable.
type Gate struct {
	enabled  atomic.Bool
	deviceID string
	sink     Sink
}

// NewGate creates a gate forwarding events to sink. A nil sink makes Emit a
// no-op regardless of the enabled flag.
func NewGate(sink Sink, deviceID string, enabled bool) *Gate {
	g := &Gate{
		deviceID: deviceID,
		sink:     sink,
	}
	g.enabled.Store(enabled)
	return g
}

// Enabled reports whether telemetry is currently on.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// SetEnabled flips the global flag. Called by the activation flow when the
// user setting changes, never by the tracker itself.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Emit records a named event. Safe to call unconditionally: it no-ops while
// disabled. Callers on hot paths should still check Enabled first to avoid
// building field maps for nothing.
func (g *Gate) Emit(name string, fields Fields) {
	if !g.enabled.Load() || g.sink == nil {
		return
	}
	g.sink.Send(context.Background(), Event{
		Name:      name,
		Fields:    fields,
		DeviceID:  g.deviceID,
		Timestamp: time.Now(),
	})
}
