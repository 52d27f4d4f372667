package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePorcelainV1(t *testing.T) {
	out := "## main...origin/main [ahead 2, behind 1]\n" +
		"M  staged.go\n" +
		" M unstaged.go\n" +
		"MM both.go\n" +
		"R  old.go -> new.go\n" +
		"?? notes.txt\n" +
		"UU conflict.go\n" +
		"A  \"tab\\there.go\"\n"

	status := parsePorcelainV1(out)

	assert.Equal(t, "main", status.Branch)
	assert.Equal(t, "origin/main", status.Upstream)
	assert.Equal(t, 2, status.Ahead)
	assert.Equal(t, 1, status.Behind)
	assert.False(t, status.IsDetached)

	assert.Equal(t, []FileStatus{
		{Path: "staged.go", Status: StatusModified},
		{Path: "both.go", Status: StatusModified},
		{Path: "new.go", OldPath: "old.go", Status: StatusRenamed},
		{Path: "tab\there.go", Status: StatusAdded},
	}, status.Staged)
	assert.Equal(t, []FileStatus{
		{Path: "unstaged.go", Status: StatusModified},
		{Path: "both.go", Status: StatusModified},
	}, status.Unstaged)
	assert.Equal(t, []string{"notes.txt"}, status.Untracked)
	assert.Equal(t, []string{"conflict.go"}, status.Conflicts)
	assert.False(t, status.Clean())
}

func TestParseBranchHeader(t *testing.T) {
	tests := []struct {
		header   string
		branch   string
		upstream string
		ahead    int
		behind   int
		detached bool
	}{
		{header: "main", branch: "main"},
		{header: "main...origin/main", branch: "main", upstream: "origin/main"},
		{header: "dev...origin/dev [behind 4]", branch: "dev", upstream: "origin/dev", behind: 4},
		{header: "dev...origin/dev [gone]", branch: "dev", upstream: "origin/dev"},
		{header: "No commits yet on trunk", branch: "trunk"},
		{header: "Initial commit on master", branch: "master"},
		{header: "HEAD (no branch)", branch: "HEAD", detached: true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			status := &DetailedStatus{}
			parseBranchHeader(tt.header, status)

			assert.Equal(t, tt.branch, status.Branch)
			assert.Equal(t, tt.upstream, status.Upstream)
			assert.Equal(t, tt.ahead, status.Ahead)
			assert.Equal(t, tt.behind, status.Behind)
			assert.Equal(t, tt.detached, status.IsDetached)
		})
	}
}

func TestParsePorcelainV1Clean(t *testing.T) {
	status := parsePorcelainV1("## main\n")
	assert.True(t, status.Clean())
	assert.NotNil(t, status.Staged)
	assert.NotNil(t, status.Untracked)
}

func TestParseBranches(t *testing.T) {
	out := "*\trefs/heads/main\tmain\tabc1234\n" +
		" \trefs/heads/feature\tfeature\tdef5678\n" +
		" \trefs/remotes/origin/HEAD\torigin\tabc1234\n" +
		" \trefs/remotes/origin/main\torigin/main\tabc1234\n" +
		"garbage\n"

	assert.Equal(t, []Branch{
		{Name: "main", Current: true, Commit: "abc1234"},
		{Name: "feature", Commit: "def5678"},
		{Name: "origin/main", Remote: true, Commit: "abc1234"},
	}, parseBranches(out))
}
