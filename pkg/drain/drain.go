// Package drain reads a child process's combined output on a background
// goroutine and fans each line out to an observer and a sink.
package drain

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Observer receives each output line with its terminator stripped
type Observer func(line string)

// LineWriter is the destination for persisted lines
type LineWriter interface {
	WriteLine(line string) error
}

// Handle tracks a running drain
type Handle struct {
	done  chan struct{}
	lines atomic.Int64

	mu  sync.Mutex
	err error
}

// Start begins draining stream until it reports end of data. observer and
// sink are both optional. The stream is closed when draining finishes.
func Start(stream io.ReadCloser, observer Observer, sink LineWriter, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{done: make(chan struct{})}
	go h.run(stream, observer, sink, logger)
	return h
}

func (h *Handle) run(stream io.ReadCloser, observer Observer, sink LineWriter, logger *slog.Logger) {
	defer close(h.done)
	defer stream.Close()

	sinkFailed := false
	reader := bufio.NewReaderSize(stream, 64*1024)

	for {
		raw, err := reader.ReadString('\n')
		if len(raw) > 0 {
			line := strings.TrimRight(raw, "\r\n")
			h.lines.Add(1)

			if observer != nil {
				observer(line)
			}

			if sink != nil && !sinkFailed {
				if werr := sink.WriteLine(line); werr != nil {
					// Keep draining so the child never blocks on a full pipe.
					sinkFailed = true
					logger.Warn("log sink write failed, further lines will not be persisted", "error", werr)
				}
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				h.setErr(err)
				logger.Debug("output stream read error", "error", err)
			}
			return
		}
	}
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Done is closed when the stream has reported end of data
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until draining finishes and returns any read error other than EOF
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// Err returns the read error that ended the drain, if any
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Lines returns the number of lines drained so far
func (h *Handle) Lines() int64 {
	return h.lines.Load()
}
