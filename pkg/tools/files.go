package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/poucet/maestro/pkg/files"
)

func (s *Service) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requireString(req, "path")
	if err != nil {
		return errorResult(err), nil
	}

	content, err := s.files.Read(path)
	if err != nil {
		s.logFailure("read_file", err)
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Service) handleWriteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requireString(req, "path")
	if err != nil {
		return errorResult(err), nil
	}
	content, err := requireString(req, "content")
	if err != nil {
		return errorResult(err), nil
	}

	return s.message("write_file", func() (string, error) {
		return s.files.Write(path, content)
	}), nil
}

func (s *Service) handleApplyDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := requireString(req, "path")
	if err != nil {
		return errorResult(err), nil
	}
	original, err := requireString(req, "original")
	if err != nil {
		return errorResult(err), nil
	}
	modified, err := requireString(req, "modified")
	if err != nil {
		return errorResult(err), nil
	}

	return s.message("apply_diff", func() (string, error) {
		return s.files.ApplyDiff(path, original, modified)
	}), nil
}

func (s *Service) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.files.List(req.GetString("path", "."), req.GetBool("recursive", false))
	if err != nil {
		s.logFailure("list_files", err)
		return errorResult(err), nil
	}
	return jsonResult(entries), nil
}

func (s *Service) handleFindFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := files.FindOptions{
		Pattern:          req.GetString("pattern", "*"),
		RespectGitignore: req.GetBool("respect_gitignore", true),
		FileType:         req.GetString("file_type", ""),
	}

	var err error
	if opts.MaxDepth, err = optionalInt(req, "max_depth"); err != nil {
		return errorResult(err), nil
	}
	if opts.MinSize, err = optionalInt64(req, "min_size"); err != nil {
		return errorResult(err), nil
	}
	if opts.MaxSize, err = optionalInt64(req, "max_size"); err != nil {
		return errorResult(err), nil
	}

	entries, err := s.files.Find(req.GetString("path", "."), opts)
	if err != nil {
		s.logFailure("find_files", err)
		return errorResult(err), nil
	}
	return jsonResult(entries), nil
}

func (s *Service) handleSearchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := requireString(req, "pattern")
	if err != nil {
		return errorResult(err), nil
	}

	matches, err := s.files.Search(ctx, pattern, req.GetString("path", "."), req.GetString("file_pattern", ""))
	if err != nil {
		s.logFailure("search_files", err)
		return errorResult(err), nil
	}
	return jsonResult(matches), nil
}

// message runs an operation whose success result is a plain message
func (s *Service) message(tool string, fn func() (string, error)) *mcp.CallToolResult {
	msg, err := fn()
	if err != nil {
		s.logFailure(tool, err)
		return errorResult(err)
	}
	return mcp.NewToolResultText(msg)
}
