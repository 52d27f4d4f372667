package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/poucet/maestro/pkg/vcs"
)

func (s *Service) handleGitCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := requireString(req, "message")
	if err != nil {
		return errorResult(err), nil
	}
	paths, err := stringSlice(req, "files")
	if err != nil {
		return errorResult(err), nil
	}

	return s.message("git_commit", func() (string, error) {
		return s.repo.Commit(ctx, message, paths)
	}), nil
}

func (s *Service) handleGitRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := stringSlice(req, "files")
	if err != nil {
		return errorResult(err), nil
	}

	return s.message("git_restore", func() (string, error) {
		return s.repo.Restore(ctx, paths, req.GetBool("staged", false))
	}), nil
}

func (s *Service) handleGitStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.message("git_status", func() (string, error) {
		return s.repo.Status(ctx)
	}), nil
}

func (s *Service) handleGitDetailedStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.repo.DetailedStatus(ctx)
	if err != nil {
		s.logFailure("git_detailed_status", err)
		return errorResult(err), nil
	}
	return jsonResult(status), nil
}

func (s *Service) handleGitLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := req.GetInt("count", 10)
	all := req.GetBool("all_branches", false)
	format := req.GetString("format", vcs.FormatOneline)

	return s.message("git_log", func() (string, error) {
		return s.repo.Log(ctx, count, all, format)
	}), nil
}

func (s *Service) handleGitShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commit := req.GetString("commit", "HEAD")
	return s.message("git_show", func() (string, error) {
		return s.repo.Show(ctx, commit)
	}), nil
}

func (s *Service) handleGitDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	staged := req.GetBool("staged", false)
	return s.message("git_diff", func() (string, error) {
		return s.repo.Diff(ctx, file, staged)
	}), nil
}

func (s *Service) handleGitBranchList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branches, err := s.repo.BranchList(ctx, req.GetBool("all_branches", false))
	if err != nil {
		s.logFailure("git_branch_list", err)
		return errorResult(err), nil
	}
	return jsonResult(branches), nil
}
