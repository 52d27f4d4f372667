package procmgr

import (
	"context"
	"net"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poucet/maestro/pkg/portprobe"
)

// mockMetricsCollector records metrics calls for assertions
type mockMetricsCollector struct {
	mu sync.Mutex

	transitions []stateTransition
	starts      []RunMode
	stops       int
	errors      []string
	restarts    map[string]int
	forcedKills map[string]int
}

type stateTransition struct {
	from ProcessState
	to   ProcessState
}

func newMockMetrics() *mockMetricsCollector {
	return &mockMetricsCollector{
		restarts:    make(map[string]int),
		forcedKills: make(map[string]int),
	}
}

func (m *mockMetricsCollector) StateTransition(from, to ProcessState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, stateTransition{from, to})
}

func (m *mockMetricsCollector) StartDuration(mode RunMode, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, mode)
}

func (m *mockMetricsCollector) StopDuration(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockMetricsCollector) Error(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, code)
}

func (m *mockMetricsCollector) Restart(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts[reason]++
}

func (m *mockMetricsCollector) ForcedKill(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedKills[target]++
}

func (m *mockMetricsCollector) restartCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts[reason]
}

func (m *mockMetricsCollector) errorCodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// mockRecorder records run history calls
type mockRecorder struct {
	mu      sync.Mutex
	started []RunRecord
	ended   []endedRun
}

type endedRun struct {
	runID    string
	exitCode *int
	reason   string
}

func (m *mockRecorder) RunStarted(ctx context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, rec)
	return nil
}

func (m *mockRecorder) RunEnded(ctx context.Context, runID string, endedAt time.Time, exitCode *int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, endedRun{runID, exitCode, reason})
	return nil
}

func (m *mockRecorder) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func (m *mockRecorder) endedRuns() []endedRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]endedRun(nil), m.ended...)
}

// lineCollector is a thread-safe observer
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) observe(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *lineCollector) count(line string) int {
	n := 0
	for _, l := range c.get() {
		if l == line {
			n++
		}
	}
	return n
}

// ownerLookup pretends the registered pids listen on any port while alive
type ownerLookup struct {
	mu   sync.Mutex
	pids []int
}

func (l *ownerLookup) Name() string { return "fake" }

func (l *ownerLookup) set(pids ...int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pids = pids
}

func (l *ownerLookup) LookupOwners(ctx context.Context, port int) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var live []int
	for _, pid := range l.pids {
		if pidAlive(pid) {
			live = append(live, pid)
		}
	}
	return live, nil
}

func fakeProbe(lookup portprobe.PortOwnerLookup) *portprobe.Probe {
	return portprobe.New(
		portprobe.WithLookups(lookup),
		portprobe.WithPollInterval(10*time.Millisecond),
	)
}

// startExternal runs a process the supervisor did not spawn and reaps it
// when it exits
func startExternal(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	require.NoError(t, cmd.Start())

	go func() { _ = cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

// freePort returns a loopback port nothing listens on
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(t *testing.T, command ...string) ProcessConfig {
	t.Helper()
	cfg := DefaultProcessConfig()
	cfg.Command = command
	cfg.LogDir = t.TempDir()
	cfg.RestartDelay = 20 * time.Millisecond
	return cfg
}

func newTestSupervisor(t *testing.T, cfg ProcessConfig, opts ...Option) *Supervisor {
	t.Helper()
	opts = append([]Option{
		WithTerminationTimeout(2 * time.Second),
		WithKillTimeout(time.Second),
		WithPortReleaseTimeout(500 * time.Millisecond),
	}, opts...)

	s, err := NewSupervisor(cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}
