package vcs

import (
	"bufio"
	"context"
	"strings"
)

// Branch is one local or remote-tracking branch
type Branch struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Remote  bool   `json:"remote"`
	Commit  string `json:"commit"`
}

const branchFormat = "%(HEAD)%09%(refname)%09%(refname:short)%09%(objectname:short)"

// BranchList lists local branches, and remote-tracking ones when all is set
func (r *Repo) BranchList(ctx context.Context, all bool) ([]Branch, error) {
	if err := r.ensureRepository(ctx); err != nil {
		return nil, err
	}

	args := []string{"branch", "--format=" + branchFormat}
	if all {
		args = append(args, "--all")
	}

	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseBranches(out), nil
}

func parseBranches(out string) []Branch {
	branches := []Branch{}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 4 {
			continue
		}
		// Symbolic refs such as origin/HEAD
		if strings.HasSuffix(fields[1], "/HEAD") {
			continue
		}

		branches = append(branches, Branch{
			Name:    fields[2],
			Current: strings.TrimSpace(fields[0]) == "*",
			Remote:  strings.HasPrefix(fields[1], "refs/remotes/"),
			Commit:  fields[3],
		})
	}
	return branches
}
