// Package logsink writes a supervised process's output to a per-run log file
// and provides read access to the log directory.
package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultDir is the directory used for default log paths
const DefaultDir = "logs"

// timestampLayout renders YYYYMMDD_HHMMSS
const timestampLayout = "20060102_150405"

// Sink is an open per-run log file. Writes are unbuffered so a tailing
// reader sees each line as soon as it is written.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// Open creates parent directories as needed and opens path for writing,
// truncating any prior content.
func Open(path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is empty")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	return &Sink{path: path, file: f}, nil
}

// Path returns the file path of the sink
func (s *Sink) Path() string {
	return s.path
}

// WriteLine appends line followed by a newline
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}

	if _, err := s.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}

// Flush commits written lines to stable storage
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.file.Sync()
}

// Close closes the file. Subsequent calls are no-ops.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Closed reports whether Close has been called
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// DefaultPath returns dir/<basename-of-command>_<YYYYMMDD_HHMMSS>.log
func DefaultPath(dir, command string, now time.Time) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", commandBase(command), now.Format(timestampLayout)))
}

// UniquePath returns path, or the first of <stem>_1.log, <stem>_2.log ...
// that does not exist yet. Two runs started within the same second would
// otherwise share a default path.
func UniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func commandBase(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "process"
	}
	base := filepath.Base(fields[0])
	if base == "." || base == string(filepath.Separator) {
		return "process"
	}
	return base
}
