//go:build unix

// Package instancelock keeps two supervisors from managing the same
// working directory at once.
package instancelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// FileName is the lock file created inside the guarded directory
const FileName = ".maestro.lock"

// ErrAlreadyRunning is matched with errors.Is when another process holds
// the lock
var ErrAlreadyRunning = errors.New("another maestro instance is already running")

// HeldError reports the lock holder
type HeldError struct {
	Path string
	PID  int // 0 when the holder's pid could not be read
}

func (e *HeldError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s (pid %d, lock %s)", ErrAlreadyRunning, e.PID, e.Path)
	}
	return fmt.Sprintf("%s (lock %s)", ErrAlreadyRunning, e.Path)
}

func (e *HeldError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// Lock is an exclusive flock on dir/FileName. It is released when the
// holding process exits, even on SIGKILL.
type Lock struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Acquire takes the lock without blocking
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &HeldError{Path: path, PID: readPID(path)}
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}

	// Record the holder for diagnostics
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &Lock{path: path, file: file}, nil
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	return nil
}

// IsHeld reports whether some process currently holds the lock for dir
func IsHeld(dir string) bool {
	path := filepath.Join(dir, FileName)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
	return false
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
