package cmd

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds maestro's own logger. Output goes to stderr, and to a
// rotated file when path is set. Stdout is left alone because the stdio
// transport owns it.
func newLogger(stderr io.Writer, path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	var (
		w      = stderr
		closer io.Closer
	)
	if path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = io.MultiWriter(stderr, file)
		closer = file
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}
