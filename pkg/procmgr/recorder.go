package procmgr

import (
	"context"
	"time"
)

// Run end reasons
const (
	EndReasonStopped     = "stopped"
	EndReasonExited      = "exited"
)

// RunRecord describes one spawn or attach
type RunRecord struct {
	RunID     string
	PID       int
	Mode      RunMode
	Command   string
	LogPath   string
	StartedAt time.Time
}

// RunRecorder persists run history. Errors are logged by the supervisor
// and never fail a lifecycle operation.
type RunRecorder interface {
	RunStarted(ctx context.Context, rec RunRecord) error
	RunEnded(ctx context.Context, runID string, endedAt time.Time, exitCode *int, reason string) error
}

type noopRecorder struct{}

func (noopRecorder) RunStarted(ctx context.Context, rec RunRecord) error { return nil }
func (noopRecorder) RunEnded(ctx context.Context, runID string, endedAt time.Time, exitCode *int, reason string) error {
	return nil
}
