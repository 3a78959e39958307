package telemetry

import (
	"context"

	"edittrack/logger"
)

// LogSink writes events to the log instead of a remote endpoint. Used when no
// telemetry endpoint is configured so local runs still surface what would
// have been sent.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, event Event) {
	logger.Debug("telemetry event %s: %v", event.Name, event.Fields)
}
