package portprobe

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	name   string
	owners []int
	err    error
	calls  atomic.Int32
}

func (f *fakeLookup) Name() string { return f.name }

func (f *fakeLookup) LookupOwners(ctx context.Context, port int) ([]int, error) {
	f.calls.Add(1)
	return f.owners, f.err
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestProbe_FirstNonEmptyLookupWins(t *testing.T) {
	first := &fakeLookup{name: "first"}
	second := &fakeLookup{name: "second", owners: []int{42, 7, 42}}
	third := &fakeLookup{name: "third", owners: []int{99}}

	p := New(WithLookups(first, second, third))
	owners := p.FindOwners(context.Background(), 8080)

	assert.Equal(t, []int{7, 42}, owners)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), third.calls.Load())

	pid, ok := p.FindOwner(context.Background(), 8080)
	assert.True(t, ok)
	assert.Equal(t, 7, pid)
}

func TestProbe_ErrorsDegradeToNotFound(t *testing.T) {
	p := New(WithLookups(
		&fakeLookup{name: "denied", err: os.ErrPermission},
		&fakeLookup{name: "missing", err: errors.New("lsof not available")},
	))

	_, ok := p.FindOwner(context.Background(), 8080)
	assert.False(t, ok)
}

func TestProbe_InvalidPort(t *testing.T) {
	lookup := &fakeLookup{name: "any", owners: []int{1}}
	p := New(WithLookups(lookup))

	assert.Empty(t, p.FindOwners(context.Background(), 0))
	assert.Equal(t, int32(0), lookup.calls.Load())
}

func TestProbe_WaitReleased(t *testing.T) {
	lookup := &fakeLookup{name: "static", owners: []int{5}}
	p := New(WithLookups(lookup), WithPollInterval(5*time.Millisecond))

	start := time.Now()
	assert.False(t, p.WaitReleased(context.Background(), 9000, 50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	free := New(WithLookups(&fakeLookup{name: "empty"}))
	assert.True(t, free.WaitReleased(context.Background(), 9000, time.Second))
}

func TestProcfsLookup_FindsOwnListener(t *testing.T) {
	lookup, err := NewProcfsLookup(DefaultProcMount)
	if err != nil {
		t.Skipf("procfs unavailable: %v", err)
	}

	_, port := listen(t)

	owners, err := lookup.LookupOwners(context.Background(), port)
	require.NoError(t, err)
	assert.Contains(t, owners, os.Getpid())
}

func TestProcfsLookup_NoListener(t *testing.T) {
	lookup, err := NewProcfsLookup(DefaultProcMount)
	if err != nil {
		t.Skipf("procfs unavailable: %v", err)
	}

	ln, port := listen(t)
	require.NoError(t, ln.Close())

	owners, err := lookup.LookupOwners(context.Background(), port)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestNewProcfsLookup_MissingMount(t *testing.T) {
	_, err := NewProcfsLookup(t.TempDir())
	assert.Error(t, err)
}

func TestLsofLookup_FindsOwnListener(t *testing.T) {
	if _, err := exec.LookPath("lsof"); err != nil {
		t.Skip("lsof not installed")
	}

	_, port := listen(t)

	owners, err := NewLsofLookup().LookupOwners(context.Background(), port)
	require.NoError(t, err)
	assert.Contains(t, owners, os.Getpid())
}

func TestParsePIDList(t *testing.T) {
	assert.Equal(t, []int{12, 345}, parsePIDList("12\n345\n"))
	assert.Empty(t, parsePIDList(""))
	assert.Equal(t, []int{9}, parsePIDList("garbage\n9\n-3\n"))
}
