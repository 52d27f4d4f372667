package tools

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/files"
	"github.com/poucet/maestro/pkg/history"
	"github.com/poucet/maestro/pkg/logsink"
	"github.com/poucet/maestro/pkg/procmgr"
	"github.com/poucet/maestro/pkg/vcs"
)

// fakeLifecycle records calls and returns canned results
type fakeLifecycle struct {
	mu       sync.Mutex
	result   fault.Result
	status   procmgr.Status
	forceNew []bool
	release  chan struct{}

	starts   atomic.Int32
	stops    atomic.Int32
	restarts atomic.Int32
}

func (f *fakeLifecycle) Start(forceNew bool) fault.Result {
	f.starts.Add(1)
	f.mu.Lock()
	f.forceNew = append(f.forceNew, forceNew)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return f.result
}

func (f *fakeLifecycle) Stop() fault.Result {
	f.stops.Add(1)
	return f.result
}

func (f *fakeLifecycle) Restart() fault.Result {
	f.restarts.Add(1)
	return f.result
}

func (f *fakeLifecycle) Status() procmgr.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type fakeHistory struct {
	runs  []history.Run
	limit int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	f.limit = limit
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type testEnv struct {
	root   string
	logDir string
	svc    *Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	root := t.TempDir()
	logDir := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	fm, err := files.NewManager(root, []string{root})
	require.NoError(t, err)

	svc := NewService(logsink.NewCatalog(logDir), fm, vcs.New(root, nil), opts...)
	return &testEnv{root: root, logDir: logDir, svc: svc}
}

type handler = server.ToolHandlerFunc

// call invokes a handler and returns its text and error flag
func call(t *testing.T, h handler, args map[string]any) (string, bool) {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	res, err := h(t.Context(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text, res.IsError
}
