package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/history"
	"github.com/poucet/maestro/pkg/logsink"
)

// TaskStatus is the task_status payload
type TaskStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	Mode         string     `json:"mode,omitempty"`
	State        string     `json:"state"`
	RunID        string     `json:"run_id,omitempty"`
	RestartCount int        `json:"restart_count"`
	LogPath      string     `json:"log_path,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	Command      string     `json:"command"`
	Port         int        `json:"port,omitempty"`
}

type logList struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Logs    []logsink.Info `json:"logs"`
}

type logRead struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

func (s *Service) handleStartTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.supervisor == nil {
		return errorResult(errNoTarget), nil
	}
	forceNew := req.GetBool("force_new", false)

	r := s.once(fmt.Sprintf("start_task:%t", forceNew), func() fault.Result {
		return s.supervisor.Start(forceNew)
	})
	if !r.OK {
		s.logFailure("start_task", r.Err)
	}
	return resultText(r), nil
}

func (s *Service) handleStopTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.supervisor == nil {
		return errorResult(errNoTarget), nil
	}

	r := s.once("stop_task", s.supervisor.Stop)
	if !r.OK {
		s.logFailure("stop_task", r.Err)
	}
	return resultText(r), nil
}

func (s *Service) handleRestartTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.supervisor == nil {
		return errorResult(errNoTarget), nil
	}

	r := s.once("restart_task", s.supervisor.Restart)
	if !r.OK {
		s.logFailure("restart_task", r.Err)
	}
	return resultText(r), nil
}

func (s *Service) handleTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.supervisor == nil {
		return errorResult(errNoTarget), nil
	}
	return jsonResult(s.taskStatus()), nil
}

func (s *Service) taskStatus() TaskStatus {
	st := s.supervisor.Status()

	out := TaskStatus{
		Running:      st.Running,
		PID:          st.PID,
		State:        st.State.String(),
		RunID:        st.RunID,
		RestartCount: st.RestartCount,
		LogPath:      st.LogPath,
		Command:      st.Command,
		Port:         st.Port,
	}
	if st.RunID != "" {
		out.Mode = st.Mode.String()
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		out.StartedAt = &started
	}
	return out
}

func (s *Service) handleListProcessLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logs, err := s.logs.List()
	if err != nil {
		s.logFailure("list_process_logs", err)
		res := jsonResult(logList{Message: "Error listing log files: " + fault.MessageOf(err), Logs: []logsink.Info{}})
		res.IsError = true
		return res, nil
	}

	return jsonResult(logList{
		Success: true,
		Message: fmt.Sprintf("Found %d log files", len(logs)),
		Logs:    logs,
	}), nil
}

func (s *Service) handleReadProcessLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := requireString(req, "filename")
	if err == nil {
		var content *logsink.Content
		content, err = s.logs.Read(filename)
		if err == nil {
			return jsonResult(logRead{
				Success:  true,
				Message:  "Read log file: " + content.Filename,
				Filename: content.Filename,
				Content:  content.Content,
				Size:     content.Size,
			}), nil
		}
	}

	s.logFailure("read_process_log", err)
	res := jsonResult(logRead{Message: fault.MessageOf(err)})
	res.IsError = true
	return res, nil
}

func (s *Service) handleProcessHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return errorResult(fault.New(fault.CodeConfig, "Run history is disabled")), nil
	}

	limit := req.GetInt("limit", history.DefaultLimit)
	if limit <= 0 {
		return errorResult(fault.ErrInvalidArgument("limit must be positive")), nil
	}

	runs, err := s.history.Recent(ctx, limit)
	if err != nil {
		s.logFailure("process_history", err)
		return errorResult(err), nil
	}
	return jsonResult(runs), nil
}
