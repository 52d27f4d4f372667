// Package vcs wraps the git command line for the supervised project.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/poucet/maestro/pkg/fault"
)

// Log formats accepted by Log
const (
	FormatOneline = "oneline"
	FormatShort   = "short"
	FormatMedium  = "medium"
	FormatFull    = "full"
	FormatFuller  = "fuller"
)

// Repo runs git commands inside one working tree
type Repo struct {
	dir    string
	logger *slog.Logger
}

// Open checks that dir is inside a git working tree
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Repo{dir: abs, logger: logger.With("component", "vcs")}
	if !r.IsRepository(ctx) {
		return nil, errNotRepository(abs)
	}
	return r, nil
}

// New returns a Repo without checking dir. Every operation still fails
// with NOT_FOUND while dir is not a git working tree.
func New(dir string, logger *slog.Logger) *Repo {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{dir: abs, logger: logger.With("component", "vcs")}
}

// Dir returns the working tree directory
func (r *Repo) Dir() string {
	return r.dir
}

// IsRepository reports whether the directory is inside a working tree
func (r *Repo) IsRepository(ctx context.Context) bool {
	out, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Commit stages files (all changes when files is empty) and commits them
func (r *Repo) Commit(ctx context.Context, message string, files []string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fault.ErrInvalidArgument("Commit message is required")
	}
	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}

	addArgs := []string{"add", "--all"}
	if len(files) > 0 {
		addArgs = append([]string{"add", "--"}, files...)
	}
	if _, err := r.git(ctx, addArgs...); err != nil {
		return "", err
	}

	stdout, stderr, err := r.run(ctx, "commit", "-m", message)
	if err != nil {
		if strings.Contains(stdout, "nothing to commit") || strings.Contains(stderr, "nothing to commit") {
			return "Nothing to commit", nil
		}
		return "", fault.ErrCommandFailed("Failed to commit: "+gitFailure(stderr, stdout), err)
	}
	r.logger.Info("committed changes", "files", len(files))
	return stdout, nil
}

// Restore discards working tree changes, or unstages them when staged is set
func (r *Repo) Restore(ctx context.Context, files []string, staged bool) (string, error) {
	if len(files) == 0 {
		return "", fault.ErrInvalidArgument("At least one file is required")
	}
	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}

	args := []string{"restore"}
	if staged {
		args = append(args, "--staged")
	}
	args = append(args, "--")
	args = append(args, files...)

	if _, err := r.git(ctx, args...); err != nil {
		return "", err
	}
	return "Files restored successfully", nil
}

// Status returns `git status --porcelain`
func (r *Repo) Status(ctx context.Context) (string, error) {
	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}
	return r.git(ctx, "status", "--porcelain")
}

// Log returns the latest count commits in the given format
func (r *Repo) Log(ctx context.Context, count int, allBranches bool, format string) (string, error) {
	if count <= 0 {
		return "", fault.ErrInvalidArgument("count must be positive")
	}

	args := []string{"log", fmt.Sprintf("-%d", count)}
	switch format {
	case "", FormatOneline:
		args = append(args, "--oneline")
	case FormatShort, FormatMedium, FormatFull, FormatFuller:
		args = append(args, "--pretty="+format)
	default:
		return "", fault.ErrInvalidArgument(fmt.Sprintf("Unsupported log format %q", format))
	}
	if allBranches {
		args = append(args, "--all")
	}

	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}
	return r.git(ctx, args...)
}

// Show returns the details of a commit
func (r *Repo) Show(ctx context.Context, commit string) (string, error) {
	if commit == "" {
		commit = "HEAD"
	}
	if strings.HasPrefix(commit, "-") {
		return "", fault.ErrInvalidArgument("Invalid revision: " + commit)
	}
	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}

	stdout, stderr, err := r.run(ctx, "show", commit, "--")
	if err != nil {
		if strings.Contains(stderr, "unknown revision") || strings.Contains(stderr, "bad object") ||
			strings.Contains(stderr, "bad revision") {
			return "", fault.ErrNotFound("Unknown revision: " + commit)
		}
		return "", fault.ErrCommandFailed("Git command failed: "+gitFailure(stderr, stdout), err)
	}
	return stdout, nil
}

// Diff returns the working tree diff, or the staged diff, optionally
// limited to one path
func (r *Repo) Diff(ctx context.Context, file string, staged bool) (string, error) {
	if err := r.ensureRepository(ctx); err != nil {
		return "", err
	}

	args := []string{"diff"}
	if staged {
		args = append(args, "--staged")
	}
	if file != "" {
		args = append(args, "--", file)
	}
	return r.git(ctx, args...)
}

func (r *Repo) ensureRepository(ctx context.Context) error {
	if !r.IsRepository(ctx) {
		return errNotRepository(r.dir)
	}
	return nil
}

func errNotRepository(dir string) error {
	return fault.ErrNotFound("Not a Git repository: " + dir)
}

// git runs a command and returns its trimmed stdout
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := r.run(ctx, args...)
	if err != nil {
		return "", fault.ErrCommandFailed("Git command failed: "+gitFailure(stderr, stdout), err).
			WithContext("args", strings.Join(args, " "))
	}
	return stdout, nil
}

// run executes git in the working tree with a stable, non-interactive
// environment
func (r *Repo) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err = cmd.Run()
	stdout = strings.TrimSpace(out.String())
	stderr = strings.TrimSpace(errOut.String())

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// git missing or not runnable
			return stdout, stderr, fmt.Errorf("run git: %w", err)
		}
		r.logger.Debug("git command failed", "args", args, "stderr", stderr)
	}
	return stdout, stderr, err
}

func gitFailure(stderr, stdout string) string {
	if stderr != "" {
		return stderr
	}
	return stdout
}
