package vcs

import (
	"bufio"
	"context"
	"strconv"
	"strings"
)

// StatusCode is the state of a file in the index or the working tree
type StatusCode string

// Status codes
const (
	StatusModified   StatusCode = "modified"
	StatusAdded      StatusCode = "added"
	StatusDeleted    StatusCode = "deleted"
	StatusRenamed    StatusCode = "renamed"
	StatusCopied     StatusCode = "copied"
	StatusTypeChange StatusCode = "type_changed"
	StatusUnknown    StatusCode = "unknown"
)

// FileStatus is one changed path
type FileStatus struct {
	Path    string     `json:"path"`
	OldPath string     `json:"old_path,omitempty"`
	Status  StatusCode `json:"status"`
}

// DetailedStatus is the parsed working tree status
type DetailedStatus struct {
	Branch     string       `json:"branch"`
	Upstream   string       `json:"upstream,omitempty"`
	Ahead      int          `json:"ahead"`
	Behind     int          `json:"behind"`
	IsDetached bool         `json:"is_detached"`
	Staged     []FileStatus `json:"staged"`
	Unstaged   []FileStatus `json:"unstaged"`
	Untracked  []string     `json:"untracked"`
	Conflicts  []string     `json:"conflicts"`
}

// Clean reports whether there is nothing to commit
func (s *DetailedStatus) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0 && len(s.Conflicts) == 0
}

// DetailedStatus parses `git status --porcelain=v1 --branch`
func (r *Repo) DetailedStatus(ctx context.Context) (*DetailedStatus, error) {
	if err := r.ensureRepository(ctx); err != nil {
		return nil, err
	}

	out, err := r.git(ctx, "status", "--porcelain=v1", "--branch", "--untracked-files=all")
	if err != nil {
		return nil, err
	}
	return parsePorcelainV1(out), nil
}

func parsePorcelainV1(out string) *DetailedStatus {
	status := &DetailedStatus{
		Staged:    []FileStatus{},
		Unstaged:  []FileStatus{},
		Untracked: []string{},
		Conflicts: []string{},
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		if strings.HasPrefix(line, "## ") {
			parseBranchHeader(line[3:], status)
			continue
		}

		x, y, path := line[0], line[1], line[3:]
		switch {
		case x == '?' && y == '?':
			status.Untracked = append(status.Untracked, unquote(path))
		case x == '!' && y == '!':
			continue
		case isConflict(x, y):
			status.Conflicts = append(status.Conflicts, unquote(path))
		default:
			newPath, oldPath := path, ""
			if i := strings.Index(path, " -> "); i >= 0 {
				oldPath, newPath = unquote(path[:i]), path[i+4:]
			}
			newPath = unquote(newPath)

			if x != ' ' {
				status.Staged = append(status.Staged, FileStatus{Path: newPath, OldPath: oldPath, Status: charToStatus(x)})
			}
			if y != ' ' {
				status.Unstaged = append(status.Unstaged, FileStatus{Path: newPath, Status: charToStatus(y)})
			}
		}
	}
	return status
}

// parseBranchHeader handles the forms
//
//	main
//	main...origin/main [ahead 1, behind 2]
//	No commits yet on main
//	HEAD (no branch)
func parseBranchHeader(header string, status *DetailedStatus) {
	if strings.HasPrefix(header, "HEAD (no branch)") {
		status.IsDetached = true
		status.Branch = "HEAD"
		return
	}
	for _, prefix := range []string{"No commits yet on ", "Initial commit on "} {
		if strings.HasPrefix(header, prefix) {
			status.Branch = strings.TrimPrefix(header, prefix)
			return
		}
	}

	tracking := ""
	if i := strings.Index(header, " ["); i >= 0 {
		tracking = strings.TrimSuffix(header[i+2:], "]")
		header = header[:i]
	}

	if i := strings.Index(header, "..."); i >= 0 {
		status.Branch = header[:i]
		status.Upstream = header[i+3:]
	} else {
		status.Branch = header
	}

	for _, part := range strings.Split(tracking, ", ") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "ahead":
			status.Ahead = n
		case "behind":
			status.Behind = n
		}
	}
}

func isConflict(x, y byte) bool {
	switch string([]byte{x, y}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

func charToStatus(c byte) StatusCode {
	switch c {
	case 'M':
		return StatusModified
	case 'A':
		return StatusAdded
	case 'D':
		return StatusDeleted
	case 'R':
		return StatusRenamed
	case 'C':
		return StatusCopied
	case 'T':
		return StatusTypeChange
	default:
		return StatusUnknown
	}
}

// unquote undoes git's C-style quoting of unusual paths
func unquote(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		if s, err := strconv.Unquote(path); err == nil {
			return s
		}
	}
	return path
}
