package logsink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDirectoriesAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "run.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o644))

	sink, err := Open(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteLine("first"))
	require.NoError(t, sink.WriteLine("second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestOpen_MissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.log")

	sink, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "x.log"))
	require.NoError(t, err)

	assert.NoError(t, sink.Close())
	assert.NoError(t, sink.Close())
	assert.True(t, sink.Closed())
	assert.NoError(t, sink.Flush())

	assert.ErrorIs(t, sink.WriteLine("late"), os.ErrClosed)
}

func TestWriteLine_VisibleWithoutFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.log")
	sink, err := Open(path)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteLine("hello"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestDefaultPath(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	tests := []struct {
		name    string
		dir     string
		command string
		want    string
	}{
		{"plain command", "logs", "python app.py", filepath.Join("logs", "python_20240309_070501.log")},
		{"absolute binary", "out", "/usr/local/bin/server --port 80", filepath.Join("out", "server_20240309_070501.log")},
		{"default dir", "", "sleep 5", filepath.Join("logs", "sleep_20240309_070501.log")},
		{"empty command", "logs", "", filepath.Join("logs", "process_20240309_070501.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPath(tt.dir, tt.command, now))
		})
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sh_20240309_070501.log")

	assert.Equal(t, path, UniquePath(path))

	require.NoError(t, os.WriteFile(path, []byte("crashed run\n"), 0o644))
	first := UniquePath(path)
	assert.Equal(t, filepath.Join(dir, "sh_20240309_070501_1.log"), first)

	require.NoError(t, os.WriteFile(first, nil, 0o644))
	assert.Equal(t, filepath.Join(dir, "sh_20240309_070501_2.log"), UniquePath(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "crashed run\n", string(data))
}
