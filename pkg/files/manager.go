// Package files gives remote callers read and write access to files under
// a fixed set of allowed directories.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poucet/maestro/pkg/fault"
)

// Manager performs file operations confined to its allowed roots
type Manager struct {
	root    string
	allowed []string
	logger  *slog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager. Relative paths given to its methods are
// resolved against root. When allowed is empty, root is the only allowed
// directory.
func NewManager(root string, allowed []string, opts ...Option) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	m := &Manager{
		root:   absRoot,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "files")

	if len(allowed) == 0 {
		allowed = []string{absRoot}
	}
	for _, dir := range allowed {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(absRoot, dir)
		}
		m.allowed = append(m.allowed, realPath(filepath.Clean(dir)))
	}
	return m, nil
}

// Root returns the directory relative paths are resolved against
func (m *Manager) Root() string {
	return m.root
}

// Allowed returns the resolved allowed roots
func (m *Manager) Allowed() []string {
	return append([]string(nil), m.allowed...)
}

// Resolve makes path absolute, follows symlinks and checks it lies inside
// an allowed root
func (m *Manager) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.root, path)
	}
	resolved := realPath(filepath.Clean(path))

	for _, root := range m.allowed {
		if within(root, resolved) {
			return resolved, nil
		}
	}

	m.logger.Warn("path outside allowed roots", "path", resolved)
	return "", fault.ErrPathNotAllowed(resolved)
}

// Read returns the content of a file
func (m *Manager) Read(path string) (string, error) {
	resolved, err := m.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", statError("File", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return "", fault.ErrInvalidArgument("Not a file: " + resolved)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", ioError("read", resolved, err)
	}
	return string(data), nil
}

// Write replaces the content of a file, creating parent directories. An
// existing file is first copied to <name>.bak.
func (m *Manager) Write(path, content string) (string, error) {
	resolved, err := m.Resolve(path)
	if err != nil {
		return "", err
	}
	return m.write(resolved, content)
}

func (m *Manager) write(resolved, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", ioError("create directory for", resolved, err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return "", fault.ErrInvalidArgument("Not a file: " + resolved)
		}
		mode = info.Mode().Perm()

		backup := resolved + ".bak"
		if err := copyFile(resolved, backup, mode); err != nil {
			return "", ioError("back up", resolved, err)
		}
		m.logger.Info("created backup", "path", backup)
	}

	if err := os.WriteFile(resolved, []byte(content), mode); err != nil {
		return "", ioError("write", resolved, err)
	}
	return "File written successfully: " + resolved, nil
}

// ApplyDiff replaces the first occurrence of original with modified
func (m *Manager) ApplyDiff(path, original, modified string) (string, error) {
	resolved, err := m.Resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", statError("File", resolved, err)
	}
	current := string(data)

	if original == "" || !strings.Contains(current, original) {
		return "", fault.ErrInvalidArgument("Original content not found in file")
	}

	updated := strings.Replace(current, original, modified, 1)
	if updated == current {
		return "", fault.ErrInvalidArgument("No changes were made to the file")
	}
	return m.write(resolved, updated)
}

func copyFile(src, dst string, mode fs.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

// realPath resolves symlinks in the longest existing prefix of path, so
// paths that do not exist yet are still checked against their real parent
func realPath(path string) string {
	var missing []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func statError(kind, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fault.ErrNotFound(fmt.Sprintf("%s not found: %s", kind, path))
	case errors.Is(err, fs.ErrPermission):
		return fault.ErrPermission("Permission denied: "+path, err)
	default:
		return fault.New(fault.CodeInternal, "Failed to access "+path).WithCause(err)
	}
}

func ioError(op, path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fault.ErrPermission("Permission denied: "+path, err)
	}
	return fault.Newf(fault.CodeInternal, "Failed to %s file %s", op, path).WithCause(err)
}
