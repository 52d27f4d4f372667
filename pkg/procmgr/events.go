package procmgr

import (
	"context"
	"log/slog"
)

// Lifecycle event types
const (
	EventStarting   = "starting"
	EventReady      = "ready"
	EventAttached   = "attached"
	EventStopping   = "stopping"
	EventStopped    = "stopped"
	EventExited     = "exited"
	EventRestarting = "restarting"
	EventFailed     = "failed"
)

// EventPublisher receives lifecycle events of the supervised process.
//
// Event types:
//   - starting: a spawn is about to happen
//   - ready: the child was spawned
//   - attached: an existing process was adopted by port
//   - stopping: termination began
//   - stopped: termination completed
//   - exited: the child exited without being asked to
//   - restarting: an automatic restart is scheduled
//   - failed: a lifecycle operation failed
type EventPublisher interface {
	// ReportLifecycleEvent publishes one event. metadata carries details
	// such as pid, exit_code or error.
	ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error
}

// NoopEventPublisher discards events
type NoopEventPublisher struct{}

// ReportLifecycleEvent does nothing
func (n *NoopEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	return nil
}

// LogEventPublisher writes events to a structured logger
type LogEventPublisher struct {
	Logger *slog.Logger
}

// ReportLifecycleEvent logs the event at INFO, or WARN for failures and exits
func (l *LogEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]any, 0, 2+2*len(metadata))
	attrs = append(attrs, "event", eventType)
	for k, v := range metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	if eventType == EventFailed || eventType == EventExited {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, message, attrs...)
	return nil
}
