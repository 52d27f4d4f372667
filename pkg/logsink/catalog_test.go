package logsink

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poucet/maestro/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCatalog_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "old.log", "a")
	time.Sleep(20 * time.Millisecond)
	writeLog(t, dir, "new.log", "bbb")
	writeLog(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.log"), 0o755))

	logs, err := NewCatalog(dir).List()
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "new.log", logs[0].Filename)
	assert.Equal(t, int64(3), logs[0].Size)
	assert.Equal(t, filepath.Join(dir, "new.log"), logs[0].Path)
	assert.Equal(t, "old.log", logs[1].Filename)
}

func TestCatalog_ListMissingDir(t *testing.T) {
	logs, err := NewCatalog(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCatalog_Read(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "run.log", "line one\nline two\n")

	content, err := NewCatalog(dir).Read("run.log")
	require.NoError(t, err)
	assert.Equal(t, "run.log", content.Filename)
	assert.Equal(t, "line one\nline two\n", content.Content)
	assert.Equal(t, int64(18), content.Size)
}

func TestCatalog_ReadRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	catalog := NewCatalog(filepath.Join(dir, "logs"))

	for _, name := range []string{"../secret.log", "/etc/passwd", "a/../../x.log", ""} {
		_, err := catalog.Read(name)
		assert.Error(t, err, name)
	}

	_, err := catalog.Read("../secret.log")
	assert.True(t, fault.IsCode(err, fault.CodePermission))
}

func TestCatalog_ReadMissing(t *testing.T) {
	_, err := NewCatalog(t.TempDir()).Read("nope.log")
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestFollow_DeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "follow.log")
	sink, err := Open(path)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.WriteLine("before"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, true, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sink.WriteLine("after"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before", "after"}, got)
}
