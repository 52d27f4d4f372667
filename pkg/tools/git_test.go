package tools

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func initRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	for _, args := range [][]string{
		{"init", "-q"},
		{"symbolic-ref", "HEAD", "refs/heads/main"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "Dev"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
}

func TestGitTools(t *testing.T) {
	env := newTestEnv(t)
	initRepo(t, env.root)
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "a.txt"), []byte("one\n"), 0o644))

	text, isErr := call(t, env.svc.handleGitStatus, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "?? a.txt")

	text, isErr = call(t, env.svc.handleGitCommit, map[string]any{"message": "add a", "files": []any{"a.txt"}})
	require.False(t, isErr, text)

	text, isErr = call(t, env.svc.handleGitCommit, map[string]any{"message": "again"})
	require.False(t, isErr, text)
	assert.Equal(t, "Nothing to commit", text)

	text, isErr = call(t, env.svc.handleGitLog, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "add a")

	text, isErr = call(t, env.svc.handleGitShow, map[string]any{"commit": "HEAD"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "+one")

	text, isErr = call(t, env.svc.handleGitShow, map[string]any{"commit": "no-such-ref"})
	assert.True(t, isErr)
	assert.Equal(t, "Error: Unknown revision: no-such-ref", text)

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "a.txt"), []byte("two\n"), 0o644))

	text, isErr = call(t, env.svc.handleGitDiff, map[string]any{"file": "a.txt"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "+two")

	text, isErr = call(t, env.svc.handleGitDetailedStatus, nil)
	require.False(t, isErr, text)
	assert.Equal(t, "main", gjson.Get(text, "branch").String())
	assert.Equal(t, "a.txt", gjson.Get(text, "unstaged.0.path").String())

	text, isErr = call(t, env.svc.handleGitRestore, map[string]any{"files": []any{"a.txt"}})
	require.False(t, isErr, text)
	assert.Equal(t, "Files restored successfully", text)

	text, isErr = call(t, env.svc.handleGitBranchList, nil)
	require.False(t, isErr, text)
	assert.Equal(t, "main", gjson.Get(text, "0.name").String())
	assert.True(t, gjson.Get(text, "0.current").Bool())
}

func TestGitToolsOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	env := newTestEnv(t)

	text, isErr := call(t, env.svc.handleGitStatus, nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "Error: Not a Git repository")

	_, isErr = call(t, env.svc.handleGitCommit, map[string]any{"message": "x", "files": []any{1}})
	assert.True(t, isErr)
}
