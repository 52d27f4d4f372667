package logsink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow streams lines appended to path until ctx is cancelled or the file
// is removed or renamed. When fromStart is false only lines written after
// the call are delivered.
func Follow(ctx context.Context, path string, fromStart bool, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch log file: %w", err)
	}

	reader := bufio.NewReader(f)
	var partial strings.Builder

	drain := func() error {
		for {
			chunk, err := reader.ReadString('\n')
			partial.WriteString(chunk)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			fn(strings.TrimRight(partial.String(), "\r\n"))
			partial.Reset()
		}
	}

	if err := drain(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != 0 {
				if err := drain(); err != nil {
					return fmt.Errorf("read log file: %w", err)
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log file: %w", err)
		}
	}
}
