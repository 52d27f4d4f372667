// Package tools exposes the supervisor and its collaborators as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/files"
	"github.com/poucet/maestro/pkg/history"
	"github.com/poucet/maestro/pkg/logsink"
	"github.com/poucet/maestro/pkg/procmgr"
	"github.com/poucet/maestro/pkg/vcs"
)

// Lifecycle is the part of the supervisor the tools drive
type Lifecycle interface {
	Start(forceNew bool) fault.Result
	Stop() fault.Result
	Restart() fault.Result
	Status() procmgr.Status
}

// HistoryReader lists recorded runs
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

var (
	_ Lifecycle     = (*procmgr.Supervisor)(nil)
	_ HistoryReader = (*history.Store)(nil)
)

// errNoTarget is returned by lifecycle tools when no command is configured
var errNoTarget = fault.ErrConfig("target_cmd", "No target command configured").
	WithSuggestion("Set SIMPLY_MAESTRO_TARGET_CMD or the manifest command")

// Service holds the collaborators behind the tool handlers. Supervisor and
// History may be nil; the tools that need them then fail.
type Service struct {
	supervisor Lifecycle
	logs       *logsink.Catalog
	history    HistoryReader
	files      *files.Manager
	repo       *vcs.Repo
	logger     *slog.Logger

	calls singleflight.Group
}

// Option configures a Service
type Option func(*Service)

// WithSupervisor sets the process supervisor
func WithSupervisor(l Lifecycle) Option {
	return func(s *Service) {
		s.supervisor = l
	}
}

// WithHistory sets the run history reader
func WithHistory(h HistoryReader) Option {
	return func(s *Service) {
		s.history = h
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the tool service
func NewService(logs *logsink.Catalog, fm *files.Manager, repo *vcs.Repo, opts ...Option) *Service {
	s := &Service{
		logs:   logs,
		files:  fm,
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tools")
	return s
}

// once collapses concurrent calls with the same key into one execution
func (s *Service) once(key string, fn func() fault.Result) fault.Result {
	v, _, shared := s.calls.Do(key, func() (interface{}, error) {
		return fn(), nil
	})
	if shared {
		s.logger.Debug("joined in-flight call", "key", key)
	}
	return v.(fault.Result)
}

func resultText(r fault.Result) *mcp.CallToolResult {
	if r.OK {
		return mcp.NewToolResultText(r.Message)
	}
	return mcp.NewToolResultError(r.String())
}

func errorResult(err error) *mcp.CallToolResult {
	return resultText(fault.Fail(err))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fault.New(fault.CodeInternal, "encode result").WithCause(err))
	}
	return mcp.NewToolResultText(string(data))
}

// requireString reads a mandatory string argument
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v, err := req.RequireString(key)
	if err != nil {
		return "", fault.ErrInvalidArgument(err.Error())
	}
	return v, nil
}

// stringSlice reads an optional array of strings
func stringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fault.ErrInvalidArgument(key + " must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	default:
		return nil, fault.ErrInvalidArgument(key + " must be a list of strings")
	}
}

// optionalInt returns nil when the argument is absent
func optionalInt(req mcp.CallToolRequest, key string) (*int, error) {
	if _, ok := req.GetArguments()[key]; !ok {
		return nil, nil
	}
	v, err := req.RequireInt(key)
	if err != nil {
		return nil, fault.ErrInvalidArgument(err.Error())
	}
	return &v, nil
}

func optionalInt64(req mcp.CallToolRequest, key string) (*int64, error) {
	v, err := optionalInt(req, key)
	if err != nil || v == nil {
		return nil, err
	}
	n := int64(*v)
	return &n, nil
}

func (s *Service) logFailure(tool string, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Code == fault.CodeInternal {
		s.logger.Error("tool failed", "tool", tool, "error", err)
		return
	}
	s.logger.Warn("tool failed", "tool", tool, "error", err)
}
