package vcs

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poucet/maestro/pkg/fault"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func newTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	gitRun(t, dir, "init", "-q")
	gitRun(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	gitRun(t, dir, "config", "user.email", "dev@example.com")
	gitRun(t, dir, "config", "user.name", "Dev")
	gitRun(t, dir, "config", "commit.gpgsign", "false")

	repo, err := Open(t.Context(), dir, nil)
	require.NoError(t, err)
	return repo, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpenNotRepository(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()

	_, err := Open(t.Context(), dir, nil)
	require.Error(t, err)
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
	assert.Contains(t, err.Error(), "Not a Git repository")

	_, err = New(dir, nil).Status(t.Context())
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestCommitAndStatus(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := t.Context()

	_, err := repo.Commit(ctx, "  ", nil)
	assert.True(t, fault.IsCode(err, fault.CodeInvalidArgument))

	writeFile(t, filepath.Join(dir, "a.txt"), "hello\n")

	status, err := repo.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", status.Branch)
	assert.Equal(t, []string{"a.txt"}, status.Untracked)

	porcelain, err := repo.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "?? a.txt", porcelain)

	_, err = repo.Commit(ctx, "initial", nil)
	require.NoError(t, err)

	porcelain, err = repo.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, porcelain)

	msg, err := repo.Commit(ctx, "again", nil)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to commit", msg)
}

func TestCommitSelectedFiles(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := t.Context()

	writeFile(t, filepath.Join(dir, "a.txt"), "a\n")
	writeFile(t, filepath.Join(dir, "b.txt"), "b\n")

	_, err := repo.Commit(ctx, "only a", []string{"a.txt"})
	require.NoError(t, err)

	status, err := repo.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, status.Untracked)
	assert.Empty(t, status.Staged)

	_, err = repo.Commit(ctx, "missing", []string{"nope.txt"})
	assert.True(t, fault.IsCode(err, fault.CodeCommandFailed))
}

func TestDiffAndRestore(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := t.Context()
	path := filepath.Join(dir, "a.txt")

	writeFile(t, path, "original\n")
	_, err := repo.Commit(ctx, "initial", nil)
	require.NoError(t, err)

	writeFile(t, path, "changed\n")

	diff, err := repo.Diff(ctx, "a.txt", false)
	require.NoError(t, err)
	assert.Contains(t, diff, "+changed")

	status, err := repo.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, []FileStatus{{Path: "a.txt", Status: StatusModified}}, status.Unstaged)

	gitRun(t, dir, "add", "a.txt")

	staged, err := repo.Diff(ctx, "", true)
	require.NoError(t, err)
	assert.Contains(t, staged, "+changed")

	msg, err := repo.Restore(ctx, []string{"a.txt"}, true)
	require.NoError(t, err)
	assert.Equal(t, "Files restored successfully", msg)

	status, err = repo.DetailedStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Staged)
	assert.Len(t, status.Unstaged, 1)

	_, err = repo.Restore(ctx, []string{"a.txt"}, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(data))

	_, err = repo.Restore(ctx, nil, false)
	assert.True(t, fault.IsCode(err, fault.CodeInvalidArgument))
}

func TestLogAndShow(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := t.Context()

	writeFile(t, filepath.Join(dir, "a.txt"), "one\n")
	_, err := repo.Commit(ctx, "first commit", nil)
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "a.txt"), "two\n")
	_, err = repo.Commit(ctx, "second commit", nil)
	require.NoError(t, err)

	log, err := repo.Log(ctx, 1, false, FormatOneline)
	require.NoError(t, err)
	assert.Contains(t, log, "second commit")
	assert.NotContains(t, log, "first commit")

	log, err = repo.Log(ctx, 10, true, FormatMedium)
	require.NoError(t, err)
	assert.Contains(t, log, "Author: Dev <dev@example.com>")
	assert.Contains(t, log, "first commit")

	_, err = repo.Log(ctx, 10, false, "xml")
	assert.True(t, fault.IsCode(err, fault.CodeInvalidArgument))
	_, err = repo.Log(ctx, 0, false, "")
	assert.True(t, fault.IsCode(err, fault.CodeInvalidArgument))

	show, err := repo.Show(ctx, "HEAD~1")
	require.NoError(t, err)
	assert.Contains(t, show, "first commit")
	assert.Contains(t, show, "+one")

	_, err = repo.Show(ctx, "deadbeefcafe")
	assert.True(t, fault.IsCode(err, fault.CodeNotFound))

	_, err = repo.Show(ctx, "--output=/tmp/x")
	assert.True(t, fault.IsCode(err, fault.CodeInvalidArgument))
}

func TestBranchList(t *testing.T) {
	repo, dir := newTestRepo(t)
	ctx := t.Context()

	writeFile(t, filepath.Join(dir, "a.txt"), "a\n")
	_, err := repo.Commit(ctx, "initial", nil)
	require.NoError(t, err)
	gitRun(t, dir, "branch", "feature")

	branches, err := repo.BranchList(ctx, true)
	require.NoError(t, err)
	require.Len(t, branches, 2)

	assert.Equal(t, "feature", branches[0].Name)
	assert.False(t, branches[0].Current)
	assert.Equal(t, "main", branches[1].Name)
	assert.True(t, branches[1].Current)
	assert.False(t, branches[1].Remote)
	assert.Equal(t, branches[0].Commit, branches[1].Commit)
	assert.NotEmpty(t, branches[1].Commit)
}
