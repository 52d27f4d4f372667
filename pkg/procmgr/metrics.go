package procmgr

import (
	"time"
)

// MetricsCollector defines the interface for collecting supervisor metrics
type MetricsCollector interface {
	// StateTransition records a lifecycle state transition
	StateTransition(fromState, toState ProcessState)

	// StartDuration records how long a start took and how it ended
	StartDuration(mode RunMode, duration time.Duration, err error)

	// StopDuration records how long a stop took
	StopDuration(duration time.Duration, err error)

	// Error records a failed operation by error code
	Error(code string)

	// Restart records a restart, "explicit" or "auto"
	Restart(reason string)

	// ForcedKill records a SIGKILL, by target ("process", "descendant", "port_owner")
	ForcedKill(target string)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) StateTransition(fromState, toState ProcessState)               {}
func (n *noopMetricsCollector) StartDuration(mode RunMode, duration time.Duration, err error) {}
func (n *noopMetricsCollector) StopDuration(duration time.Duration, err error)                {}
func (n *noopMetricsCollector) Error(code string)                                             {}
func (n *noopMetricsCollector) Restart(reason string)                                         {}
func (n *noopMetricsCollector) ForcedKill(target string)                                      {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
