// Package portprobe finds the processes listening on a TCP port.
//
// Lookups are strategies tried in order: the first one that reports an
// owner wins. Failures of individual strategies, including permission
// errors, degrade to "not found" instead of surfacing to the caller.
package portprobe

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// PortOwnerLookup resolves the pids listening on a TCP port
type PortOwnerLookup interface {
	// Name identifies the strategy in logs
	Name() string

	// LookupOwners returns the pids in LISTEN state on port, or an empty
	// slice when there are none
	LookupOwners(ctx context.Context, port int) ([]int, error)
}

// DefaultPollInterval is used by WaitReleased between lookups
const DefaultPollInterval = 100 * time.Millisecond

// Probe runs a sequence of lookups
type Probe struct {
	lookups      []PortOwnerLookup
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Probe
type Option func(*Probe)

// WithLookups replaces the default lookup sequence
func WithLookups(lookups ...PortOwnerLookup) Option {
	return func(p *Probe) {
		p.lookups = lookups
	}
}

// WithPollInterval sets the interval used by WaitReleased
func WithPollInterval(d time.Duration) Option {
	return func(p *Probe) {
		p.pollInterval = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

// New creates a Probe using DefaultLookups unless overridden
func New(opts ...Option) *Probe {
	p := &Probe{
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lookups == nil {
		p.lookups = DefaultLookups()
	}
	p.logger = p.logger.With("component", "portprobe")
	return p
}

// DefaultLookups returns procfs (when /proc is available) followed by lsof
func DefaultLookups() []PortOwnerLookup {
	var lookups []PortOwnerLookup
	if procfs, err := NewProcfsLookup(DefaultProcMount); err == nil {
		lookups = append(lookups, procfs)
	}
	return append(lookups, NewLsofLookup())
}

// FindOwner returns the first pid listening on port
func (p *Probe) FindOwner(ctx context.Context, port int) (int, bool) {
	owners := p.FindOwners(ctx, port)
	if len(owners) == 0 {
		return 0, false
	}
	return owners[0], true
}

// FindOwners returns every pid listening on port, sorted ascending
func (p *Probe) FindOwners(ctx context.Context, port int) []int {
	if port <= 0 {
		return nil
	}

	for _, lookup := range p.lookups {
		owners, err := lookup.LookupOwners(ctx, port)
		if err != nil {
			p.logger.Debug("port lookup failed", "lookup", lookup.Name(), "port", port, "error", err)
			continue
		}
		if len(owners) > 0 {
			return normalize(owners)
		}
	}
	return nil
}

// WaitReleased polls until nothing listens on port or timeout elapses.
// It returns true when the port is free.
func (p *Probe) WaitReleased(ctx context.Context, port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if len(p.FindOwners(ctx, port)) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.pollInterval):
		}
	}
}

func normalize(pids []int) []int {
	seen := make(map[int]bool, len(pids))
	out := make([]int, 0, len(pids))
	for _, pid := range pids {
		if pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}
