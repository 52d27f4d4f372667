// Package procmgr supervises one long-running child process: it spawns the
// child or attaches to an instance already listening on the configured
// port, captures its output, and stops or restarts it on demand while
// making sure the port is actually released.
package procmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/poucet/maestro/pkg/drain"
	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/logsink"
	"github.com/poucet/maestro/pkg/portprobe"
)

const (
	defaultTerminationTimeout = 5 * time.Second
	defaultKillTimeout        = 2 * time.Second
	defaultPortReleaseTimeout = 5 * time.Second
	defaultPortKillGrace      = time.Second
	livenessPollInterval      = 100 * time.Millisecond
)

// Supervisor owns the lifecycle of one process. Lifecycle methods are
// serialized by an internal mutex.
type Supervisor struct {
	mu sync.Mutex

	cfg ProcessConfig

	// Collaborators
	probe    *portprobe.Probe
	observer drain.Observer
	metrics  MetricsCollector
	events   EventPublisher
	recorder RunRecorder
	logger   *slog.Logger

	// Bounds
	terminationTimeout time.Duration
	killTimeout        time.Duration
	portReleaseTimeout time.Duration
	portKillGrace      time.Duration

	// Lifecycle state, guarded by mu
	state        ProcessState
	run          *run
	restartCount int
	epoch        uint64
	closed       bool

	// Background work (exit watchers, pending auto-restarts)
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// run is one spawned or attached process
type run struct {
	id        string
	pid       int
	mode      RunMode
	startedAt time.Time

	// Owned runs only
	cmd    *exec.Cmd
	sink   *logsink.Sink
	output *drain.Handle
	exited chan struct{}

	// Written by the reaper before exited is closed
	exitCode int
	exitErr  error
}

func (r *run) hasExited() bool {
	if r.exited == nil {
		return false
	}
	select {
	case <-r.exited:
		return true
	default:
		return false
	}
}

func (r *run) alive() bool {
	if r.hasExited() {
		return false
	}
	return pidAlive(r.pid)
}

func (r *run) logPath() string {
	if r.sink == nil {
		return ""
	}
	return r.sink.Path()
}

// NewSupervisor validates cfg and creates a stopped supervisor
func NewSupervisor(cfg ProcessConfig, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fault.ErrConfig("process", err.Error()).WithCause(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		cfg:                cfg,
		metrics:            NewNoopMetricsCollector(),
		events:             &NoopEventPublisher{},
		recorder:           noopRecorder{},
		logger:             slog.Default(),
		terminationTimeout: defaultTerminationTimeout,
		killTimeout:        defaultKillTimeout,
		portReleaseTimeout: defaultPortReleaseTimeout,
		portKillGrace:      defaultPortKillGrace,
		state:              StateStopped,
		shutdownCtx:        ctx,
		shutdownCancel:     cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("component", "supervisor")
	if s.probe == nil {
		s.probe = portprobe.New(portprobe.WithLogger(s.logger))
	}

	return s, nil
}

// Config returns the supervised process configuration
func (s *Supervisor) Config() ProcessConfig {
	return s.cfg
}

// Start starts the process, or attaches to the process already listening
// on the configured port unless forceNew is set. Starting a running
// process succeeds without side effects.
func (s *Supervisor) Start(forceNew bool) fault.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fault.Fail(errClosed)
	}

	s.epoch++
	msg, err := s.startLocked(forceNew, true)
	if err != nil {
		return s.fail("start", err)
	}
	return fault.OK(msg)
}

// Stop terminates the process group and verifies the port is released.
// Stopping when nothing runs succeeds.
func (s *Supervisor) Stop() fault.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	msg, err := s.stopLocked()
	if err != nil {
		return s.fail("stop", err)
	}
	return fault.OK(msg)
}

// Restart stops the process, waits the restart delay and spawns a fresh
// process. It never re-attaches.
func (s *Supervisor) Restart() fault.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fault.Fail(errClosed)
	}

	s.epoch++
	if _, err := s.stopLocked(); err != nil {
		return s.fail("restart", err)
	}

	s.metrics.Restart("explicit")
	s.publish(EventRestarting, "Restarting process", map[string]string{
		"delay": s.cfg.RestartDelay.String(),
	})
	time.Sleep(s.cfg.RestartDelay)

	msg, err := s.startLocked(true, true)
	if err != nil {
		return s.fail("restart", err)
	}
	return fault.OK("Process restarted successfully: " + msg)
}

// IsRunning re-checks the OS process table for the tracked pid
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.alive()
}

// PID returns the tracked pid, or 0
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return 0
	}
	return s.run.pid
}

// Status returns a snapshot of the supervisor
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.state,
		RestartCount: s.restartCount,
		Command:      s.cfg.CommandLine(),
		Port:         s.cfg.Port,
	}
	if r := s.run; r != nil {
		st.Running = r.alive()
		st.Mode = r.mode
		st.PID = r.pid
		st.RunID = r.id
		st.LogPath = r.logPath()
		st.StartedAt = r.startedAt
	}
	return st
}

// Close stops the process, cancels any pending automatic restart and waits
// for background goroutines until ctx is done.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.epoch++
	s.shutdownCancel()
	_, err := s.stopLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

var errClosed = errors.New("supervisor is closed")

// startLocked implements Start. explicit is false for automatic restarts,
// which must not reset the restart counter.
func (s *Supervisor) startLocked(forceNew, explicit bool) (string, error) {
	ctx := context.Background()

	if r := s.run; r != nil {
		if r.alive() {
			return fmt.Sprintf("Process already running (PID %d)", r.pid), nil
		}
		s.logger.Info("tracked process is gone, discarding stale run", "pid", r.pid, "run_id", r.id)
		s.teardownLocked(r, EndReasonExited)
	}

	port := s.cfg.Port
	if port > 0 && !forceNew {
		if pid, ok := s.probe.FindOwner(ctx, port); ok {
			if pid == os.Getpid() {
				return "", fault.ErrPortConflict(port, []int{pid}).
					WithSuggestion("The supervisor itself listens on this port; configure a different target port")
			}
			return s.attachLocked(pid), nil
		}
	}

	if port > 0 && forceNew {
		if err := s.freePortLocked(ctx, port); err != nil {
			return "", err
		}
	}

	if explicit {
		s.restartCount = 0
	}

	begin := time.Now()
	s.setState(StateStarting)
	s.publish(EventStarting, "Starting process", map[string]string{"command": s.cfg.CommandLine()})

	r, err := s.spawnLocked()
	s.metrics.StartDuration(ModeOwned, time.Since(begin), err)
	if err != nil {
		s.setState(StateStopped)
		s.publish(EventFailed, "Process failed to start", map[string]string{"error": err.Error()})
		return "", err
	}

	s.run = r
	s.setState(StateRunning)
	s.record(func(ctx context.Context) error {
		return s.recorder.RunStarted(ctx, RunRecord{
			RunID:     r.id,
			PID:       r.pid,
			Mode:      r.mode,
			Command:   s.cfg.CommandLine(),
			LogPath:   r.logPath(),
			StartedAt: r.startedAt,
		})
	})
	s.publish(EventReady, "Process started", map[string]string{
		"pid":      strconv.Itoa(r.pid),
		"log_path": r.logPath(),
	})
	s.logger.Info("process started", "pid", r.pid, "run_id", r.id, "command", s.cfg.CommandLine(), "log_path", r.logPath())

	s.wg.Add(1)
	go s.watch(r)

	return fmt.Sprintf("Process started (PID %d)", r.pid), nil
}

// attachLocked adopts a process found on the configured port
func (s *Supervisor) attachLocked(pid int) string {
	r := &run{
		id:        uuid.NewString(),
		pid:       pid,
		mode:      ModeAttached,
		startedAt: time.Now(),
	}
	s.run = r
	s.setState(StateRunning)
	s.metrics.StartDuration(ModeAttached, 0, nil)
	s.record(func(ctx context.Context) error {
		return s.recorder.RunStarted(ctx, RunRecord{
			RunID:     r.id,
			PID:       pid,
			Mode:      ModeAttached,
			Command:   processName(pid),
			StartedAt: r.startedAt,
		})
	})

	msg := fmt.Sprintf("Attached to existing process on port %d (PID %d)", s.cfg.Port, pid)
	s.publish(EventAttached, msg, map[string]string{"pid": strconv.Itoa(pid), "port": strconv.Itoa(s.cfg.Port)})
	s.logger.Info("attached to existing process", "pid", pid, "port", s.cfg.Port, "name", processName(pid))
	return msg
}

// freePortLocked terminates whatever listens on port before a forced start
func (s *Supervisor) freePortLocked(ctx context.Context, port int) error {
	owners := s.probe.FindOwners(ctx, port)
	if len(owners) == 0 {
		return nil
	}

	s.logger.Warn("port in use before forced start, terminating owners", "port", port, "owners", owners)
	for _, pid := range owners {
		if pid == os.Getpid() {
			return fault.ErrPortConflict(port, owners).
				WithSuggestion("The supervisor itself listens on this port; configure a different target port")
		}

		forced, err := s.terminatePID(pid, signalTarget(pid, false))
		if forced {
			s.metrics.ForcedKill("port_owner")
		}
		if err != nil {
			s.logger.Warn("failed to terminate port owner", "pid", pid, "error", err)
		}
	}

	if !s.probe.WaitReleased(ctx, port, s.portReleaseTimeout) {
		remaining := s.probe.FindOwners(ctx, port)
		return s.portConflict(port, remaining)
	}
	return nil
}

// spawnLocked starts the child in its own process group with output wired
// to the drain
func (s *Supervisor) spawnLocked() (*run, error) {
	commandLine := s.cfg.CommandLine()
	argv := s.cfg.Command

	var sink *logsink.Sink
	if s.cfg.LogToFile {
		path := s.cfg.LogPath
		if path == "" {
			path = logsink.UniquePath(logsink.DefaultPath(s.cfg.LogDir, argv[0], time.Now()))
		}
		opened, err := logsink.Open(path)
		if err != nil {
			return nil, fault.ErrSpawn(commandLine, err).WithContext("log_path", path)
		}
		sink = opened
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), s.cfg.Env)
	cmd.SysProcAttr = newProcAttr()

	var reader *os.File
	if s.cfg.CaptureOutput || sink != nil {
		r, w, err := os.Pipe()
		if err != nil {
			closeSink(sink)
			return nil, fault.ErrSpawn(commandLine, fmt.Errorf("create output pipe: %w", err))
		}
		// Combined stream; the parent's write end is closed once the
		// child holds its own copy.
		cmd.Stdout = w
		cmd.Stderr = w
		reader = r
		defer w.Close()
	}

	if err := cmd.Start(); err != nil {
		if reader != nil {
			reader.Close()
		}
		closeSink(sink)
		return nil, fault.ErrSpawn(commandLine, err)
	}

	r := &run{
		id:        uuid.NewString(),
		pid:       cmd.Process.Pid,
		mode:      ModeOwned,
		startedAt: time.Now(),
		cmd:       cmd,
		sink:      sink,
		exited:    make(chan struct{}),
	}

	go reap(r)

	if reader != nil {
		var lineSink drain.LineWriter
		if sink != nil {
			lineSink = sink
		}
		var observer drain.Observer
		if s.cfg.CaptureOutput {
			observer = s.outputObserver()
		}
		r.output = drain.Start(reader, observer, lineSink, s.logger)
	}

	return r, nil
}

// reap waits for the child so its exit status is observable and it never
// lingers as a zombie
func reap(r *run) {
	err := r.cmd.Wait()
	r.exitErr = err
	r.exitCode = -1
	if ps := r.cmd.ProcessState; ps != nil {
		r.exitCode = ps.ExitCode()
	}
	close(r.exited)
}

func (s *Supervisor) outputObserver() drain.Observer {
	if s.observer != nil {
		return s.observer
	}
	target := s.logger.With("component", "target")
	return func(line string) {
		target.Info(line)
	}
}

// stopLocked implements Stop
func (s *Supervisor) stopLocked() (string, error) {
	r := s.run
	if r == nil {
		return "Process is not running", nil
	}

	if !r.alive() {
		s.teardownLocked(r, EndReasonExited)
		if s.cfg.Port > 0 {
			if err := s.verifyPortReleasedLocked(context.Background(), s.cfg.Port); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Process %d had already exited", r.pid), nil
	}

	begin := time.Now()
	s.setState(StateStopping)
	s.publish(EventStopping, "Stopping process", map[string]string{
		"pid":  strconv.Itoa(r.pid),
		"mode": r.mode.String(),
	})

	attached := r.mode == ModeAttached
	descendants := descendantsOf(r.pid)

	forced, err := s.terminateRun(r, signalTarget(r.pid, !attached))
	if forced {
		s.metrics.ForcedKill("process")
	}
	if err != nil {
		s.setState(StateRunning)
		s.metrics.StopDuration(time.Since(begin), err)
		return "", err
	}

	for _, pid := range descendants {
		if pidAlive(pid) {
			s.logger.Warn("descendant survived group termination, killing", "pid", pid)
			if err := killPID(pid); err != nil {
				s.logger.Warn("failed to kill descendant", "pid", pid, "error", err)
				continue
			}
			s.metrics.ForcedKill("descendant")
		}
	}

	var portErr error
	if s.cfg.Port > 0 {
		portErr = s.verifyPortReleasedLocked(context.Background(), s.cfg.Port)
	}

	s.teardownLocked(r, EndReasonStopped)
	s.metrics.StopDuration(time.Since(begin), portErr)
	if portErr != nil {
		return "", portErr
	}

	s.publish(EventStopped, "Process stopped", map[string]string{"pid": strconv.Itoa(r.pid)})
	s.logger.Info("process stopped", "pid", r.pid, "run_id", r.id, "forced", forced)
	return fmt.Sprintf("Process stopped (PID %d)", r.pid), nil
}

// verifyPortReleasedLocked waits for port to be free, force-killing any
// remaining owner as a last resort
func (s *Supervisor) verifyPortReleasedLocked(ctx context.Context, port int) error {
	if s.probe.WaitReleased(ctx, port, s.portReleaseTimeout) {
		return nil
	}

	owners := s.probe.FindOwners(ctx, port)
	s.logger.Warn("port still in use after stop, killing owners", "port", port, "owners", owners)
	for _, pid := range owners {
		if pid == os.Getpid() {
			continue
		}
		if err := killPID(pid); err != nil {
			s.logger.Warn("failed to kill port owner", "pid", pid, "error", err)
			continue
		}
		s.metrics.ForcedKill("port_owner")
	}

	if s.probe.WaitReleased(ctx, port, s.portKillGrace) {
		return nil
	}
	return s.portConflict(port, s.probe.FindOwners(ctx, port))
}

// terminateRun escalates SIGTERM to SIGKILL for a tracked run. forced
// reports whether SIGKILL was needed.
func (s *Supervisor) terminateRun(r *run, pgid int) (forced bool, err error) {
	if err := sendSignal(r.pid, pgid, unix.SIGTERM); err != nil {
		return false, err
	}
	if s.waitGone(r.alive, s.terminationTimeout) {
		return false, nil
	}

	s.logger.Warn("process did not exit gracefully, sending SIGKILL", "pid", r.pid, "timeout", s.terminationTimeout)
	if err := sendSignal(r.pid, pgid, unix.SIGKILL); err != nil {
		return true, err
	}
	if s.waitGone(r.alive, s.killTimeout) {
		return true, nil
	}
	return true, fault.ErrTerminationTimeout(r.pid, nil)
}

// terminatePID escalates SIGTERM to SIGKILL for an untracked pid
func (s *Supervisor) terminatePID(pid, pgid int) (forced bool, err error) {
	alive := func() bool { return pidAlive(pid) }

	if err := sendSignal(pid, pgid, unix.SIGTERM); err != nil {
		return false, err
	}
	if s.waitGone(alive, s.terminationTimeout) {
		return false, nil
	}

	if err := sendSignal(pid, pgid, unix.SIGKILL); err != nil {
		return true, err
	}
	if s.waitGone(alive, s.killTimeout) {
		return true, nil
	}
	return true, fault.ErrTerminationTimeout(pid, nil)
}

// waitGone polls alive until it reports false or timeout elapses
func (s *Supervisor) waitGone(alive func() bool, timeout time.Duration) bool {
	if !alive() {
		return true
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(livenessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return !alive()
		case <-ticker.C:
			if !alive() {
				return true
			}
		}
	}
}

// teardownLocked clears r from the supervisor, closing its log sink once
// the output drain has persisted everything the child wrote
func (s *Supervisor) teardownLocked(r *run, reason string) {
	if s.run == r {
		s.run = nil
	}
	s.awaitOutput(r)
	closeSink(r.sink)

	var exitCode *int
	if r.hasExited() {
		code := r.exitCode
		exitCode = &code
	}
	endedAt := time.Now()
	s.record(func(ctx context.Context) error {
		return s.recorder.RunEnded(ctx, r.id, endedAt, exitCode, reason)
	})

	s.setState(StateStopped)
}

// awaitOutput waits up to killTimeout for the output stream of r to reach
// end of data. A descendant that escaped termination can hold the pipe open
// indefinitely.
func (s *Supervisor) awaitOutput(r *run) {
	if r.output == nil {
		return
	}

	timer := time.NewTimer(s.killTimeout)
	defer timer.Stop()
	select {
	case <-r.output.Done():
	case <-timer.C:
		s.logger.Warn("output stream still open after process ended, closing log file", "pid", r.pid, "run_id", r.id)
	}
}

func (s *Supervisor) setState(to ProcessState) {
	if s.state == to {
		return
	}
	s.metrics.StateTransition(s.state, to)
	s.state = to
}

func (s *Supervisor) portConflict(port int, owners []int) error {
	err := fault.ErrPortConflict(port, owners)
	if len(owners) > 0 {
		if name := processName(owners[0]); name != "" {
			err = err.WithContext("owner_name", name)
		}
	}
	return err
}

// fail converts err into a failed Result, recording it on the way
func (s *Supervisor) fail(op string, err error) fault.Result {
	code := string(fault.CodeOf(err))
	if code == "" {
		code = string(fault.CodeInternal)
	}
	s.metrics.Error(code)
	s.logger.Error("lifecycle operation failed", "op", op, "code", code, "error", err)
	return fault.Fail(err)
}

func (s *Supervisor) publish(eventType, message string, metadata map[string]string) {
	if err := s.events.ReportLifecycleEvent(context.Background(), eventType, message, metadata); err != nil {
		s.logger.Debug("failed to publish lifecycle event", "event", eventType, "error", err)
	}
}

func (s *Supervisor) record(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("failed to record run history", "error", err)
	}
}

func closeSink(sink *logsink.Sink) {
	if sink != nil {
		_ = sink.Close()
	}
}

// mergeEnv overlays overrides on base, a list of KEY=VALUE pairs
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
