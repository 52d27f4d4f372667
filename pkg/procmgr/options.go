package procmgr

import (
	"log/slog"
	"time"

	"github.com/poucet/maestro/pkg/drain"
	"github.com/poucet/maestro/pkg/portprobe"
)

// Option configures the Supervisor
type Option func(*Supervisor)

// WithProbe sets the port probe
func WithProbe(probe *portprobe.Probe) Option {
	return func(s *Supervisor) {
		s.probe = probe
	}
}

// WithObserver sets the receiver of captured output lines
func WithObserver(observer drain.Observer) Option {
	return func(s *Supervisor) {
		s.observer = observer
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Supervisor) {
		s.metrics = mc
	}
}

// WithEventPublisher sets the lifecycle event publisher
func WithEventPublisher(ep EventPublisher) Option {
	return func(s *Supervisor) {
		s.events = ep
	}
}

// WithRecorder sets the run history recorder
func WithRecorder(rr RunRecorder) Option {
	return func(s *Supervisor) {
		s.recorder = rr
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithTerminationTimeout sets how long to wait after SIGTERM
func WithTerminationTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.terminationTimeout = d
	}
}

// WithKillTimeout sets how long to wait after SIGKILL
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killTimeout = d
	}
}

// WithPortReleaseTimeout sets how long to wait for the port to be released
func WithPortReleaseTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.portReleaseTimeout = d
	}
}
