package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName identifies this tool server to MCP clients
const ServerName = "simply-maestro"

// Transports
const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// NewServer builds the MCP server with every tool registered
func NewServer(svc *Service, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	svc.Register(s)
	return s
}

// Register adds the tools to an MCP server
func (svc *Service) Register(s *server.MCPServer) {
	// Process lifecycle
	s.AddTool(mcp.NewTool("start_task",
		mcp.WithDescription("Start the supervised process, or attach to the process already serving its port"),
		mcp.WithBoolean("force_new", mcp.Description("Free the port and spawn a fresh process instead of attaching")),
	), svc.handleStartTask)
	s.AddTool(mcp.NewTool("stop_task",
		mcp.WithDescription("Stop the supervised process and its process group"),
	), svc.handleStopTask)
	s.AddTool(mcp.NewTool("restart_task",
		mcp.WithDescription("Stop the supervised process and start a fresh one"),
	), svc.handleRestartTask)
	s.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Report the state of the supervised process as JSON"),
	), svc.handleTaskStatus)

	// Logs and history
	s.AddTool(mcp.NewTool("list_process_logs",
		mcp.WithDescription("List process log files, newest first"),
	), svc.handleListProcessLogs)
	s.AddTool(mcp.NewTool("read_process_log",
		mcp.WithDescription("Read a process log file"),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Log file name inside the log directory")),
	), svc.handleReadProcessLog)
	s.AddTool(mcp.NewTool("process_history",
		mcp.WithDescription("List recent runs of the supervised process"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), svc.handleProcessHistory)

	// Files
	s.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
	), svc.handleReadFile)
	s.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Write a file, keeping a .bak copy of the previous content"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New content")),
	), svc.handleWriteFile)
	s.AddTool(mcp.NewTool("apply_diff",
		mcp.WithDescription("Replace the first occurrence of original with modified"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("original", mcp.Required(), mcp.Description("Text to replace")),
		mcp.WithString("modified", mcp.Required(), mcp.Description("Replacement text")),
	), svc.handleApplyDiff)
	s.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List a directory"),
		mcp.WithString("path", mcp.Description("Directory path (default working directory)")),
		mcp.WithBoolean("recursive", mcp.Description("Descend into subdirectories")),
	), svc.handleListFiles)
	s.AddTool(mcp.NewTool("find_files",
		mcp.WithDescription("Find files by name pattern"),
		mcp.WithString("path", mcp.Description("Directory to search")),
		mcp.WithString("pattern", mcp.Description("Glob matched against base names (default *)")),
		mcp.WithBoolean("respect_gitignore", mcp.Description("Skip paths ignored by .gitignore (default true)")),
		mcp.WithString("file_type", mcp.Description("Restrict to \"file\" or \"dir\"")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum directory depth")),
		mcp.WithNumber("min_size", mcp.Description("Minimum file size in bytes")),
		mcp.WithNumber("max_size", mcp.Description("Maximum file size in bytes")),
	), svc.handleFindFiles)
	s.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Search file contents with ripgrep"),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regular expression")),
		mcp.WithString("path", mcp.Description("Directory to search")),
		mcp.WithString("file_pattern", mcp.Description("Glob restricting searched files")),
	), svc.handleSearchFiles)

	// Git
	s.AddTool(mcp.NewTool("git_commit",
		mcp.WithDescription("Stage files (all changes when none given) and commit"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Commit message")),
		mcp.WithArray("files", mcp.Description("Paths to stage"), mcp.Items(map[string]any{"type": "string"})),
	), svc.handleGitCommit)
	s.AddTool(mcp.NewTool("git_restore",
		mcp.WithDescription("Discard working tree changes, or unstage them"),
		mcp.WithArray("files", mcp.Required(), mcp.Description("Paths to restore"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("staged", mcp.Description("Unstage instead of discarding")),
	), svc.handleGitRestore)
	s.AddTool(mcp.NewTool("git_status",
		mcp.WithDescription("Show git status --porcelain"),
	), svc.handleGitStatus)
	s.AddTool(mcp.NewTool("git_detailed_status",
		mcp.WithDescription("Show branch tracking and changed files as JSON"),
	), svc.handleGitDetailedStatus)
	s.AddTool(mcp.NewTool("git_log",
		mcp.WithDescription("Show the commit log"),
		mcp.WithNumber("count", mcp.Description("Number of commits (default 10)")),
		mcp.WithBoolean("all_branches", mcp.Description("Include all branches")),
		mcp.WithString("format", mcp.Description("oneline, short, medium, full or fuller"),
			mcp.Enum("oneline", "short", "medium", "full", "fuller")),
	), svc.handleGitLog)
	s.AddTool(mcp.NewTool("git_show",
		mcp.WithDescription("Show a commit"),
		mcp.WithString("commit", mcp.Description("Revision (default HEAD)")),
	), svc.handleGitShow)
	s.AddTool(mcp.NewTool("git_diff",
		mcp.WithDescription("Show unstaged or staged changes"),
		mcp.WithString("file", mcp.Description("Limit the diff to one path")),
		mcp.WithBoolean("staged", mcp.Description("Show staged changes")),
	), svc.handleGitDiff)
	s.AddTool(mcp.NewTool("git_branch_list",
		mcp.WithDescription("List branches as JSON"),
		mcp.WithBoolean("all_branches", mcp.Description("Include remote-tracking branches")),
	), svc.handleGitBranchList)
}

// Serve runs the MCP server on the given transport until ctx is done
func Serve(ctx context.Context, s *server.MCPServer, transport string, port int) error {
	switch transport {
	case TransportStdio:
		stdio := server.NewStdioServer(s)
		return stdio.Listen(ctx, os.Stdin, os.Stdout)

	case TransportSSE:
		addr := fmt.Sprintf(":%d", port)
		sse := server.NewSSEServer(s, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

		errCh := make(chan error, 1)
		go func() {
			errCh <- sse.Start(addr)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("sse server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown sse server: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}
