package procmgr

import (
	"fmt"
	"time"

	"github.com/kballard/go-shellquote"
)

// ProcessState represents the lifecycle state of the supervised process
type ProcessState int

const (
	// StateStopped - nothing is tracked
	StateStopped ProcessState = iota
	// StateStarting - spawning or attaching
	StateStarting
	// StateRunning - a live process is tracked
	StateRunning
	// StateStopping - termination in progress
	StateStopping
)

// String returns the string representation of a ProcessState
func (ps ProcessState) String() string {
	switch ps {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// RunMode distinguishes a spawned child from an adopted process
type RunMode int

const (
	// ModeOwned - this supervisor spawned the child and holds its handle
	ModeOwned RunMode = iota
	// ModeAttached - an already-running process found by port
	ModeAttached
)

// String returns the string representation of a RunMode
func (m RunMode) String() string {
	switch m {
	case ModeOwned:
		return "owned"
	case ModeAttached:
		return "attached"
	default:
		return "unknown"
	}
}

// ProcessConfig describes the supervised command. It is immutable once
// passed to NewSupervisor.
type ProcessConfig struct {
	// Command is the argument vector; Command[0] is the executable
	Command []string

	// WorkingDir for the child; empty means the supervisor's own
	WorkingDir string

	// Env overrides merged over the inherited environment
	Env map[string]string

	// RestartDelay is waited before an automatic or explicit restart spawns
	RestartDelay time.Duration

	// MaxRestartAttempts bounds automatic restarts between explicit starts
	MaxRestartAttempts int

	// CaptureOutput forwards output lines to the observer
	CaptureOutput bool

	// LogToFile writes output lines to a per-run log file
	LogToFile bool

	// LogPath overrides the default log path
	LogPath string

	// LogDir is used for default log paths
	LogDir string

	// Port the child is expected to listen on; 0 means none
	Port int
}

// DefaultProcessConfig returns defaults for everything except the command
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		RestartDelay:       time.Second,
		MaxRestartAttempts: 3,
		CaptureOutput:      true,
		LogToFile:          true,
		LogDir:             "logs",
	}
}

// Validate checks the configuration
func (c ProcessConfig) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return fmt.Errorf("command is empty")
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("restart delay must not be negative: %v", c.RestartDelay)
	}
	if c.MaxRestartAttempts < 0 {
		return fmt.Errorf("max restart attempts must not be negative: %d", c.MaxRestartAttempts)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}

// CommandLine renders Command as a shell-quoted string
func (c ProcessConfig) CommandLine() string {
	return shellquote.Join(c.Command...)
}

// Status is a point-in-time snapshot of the supervisor
type Status struct {
	State        ProcessState
	Running      bool
	Mode         RunMode
	PID          int
	RunID        string
	RestartCount int
	LogPath      string
	StartedAt    time.Time
	Command      string
	Port         int
}

// Uptime returns how long the current run has been tracked
func (s Status) Uptime() time.Duration {
	if !s.Running || s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}
