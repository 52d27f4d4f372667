package files

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/poucet/maestro/pkg/fault"
)

// Match is one line matched by Search
type Match struct {
	Path    string `json:"path"`
	Line    int64  `json:"line"`
	Content string `json:"content"`
}

// Search runs ripgrep for a regular expression under path, optionally
// limited to files matching fileGlob
func (m *Manager) Search(ctx context.Context, pattern, path, fileGlob string) ([]Match, error) {
	if pattern == "" {
		return nil, fault.ErrInvalidArgument("Search pattern is required")
	}

	resolved, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}

	rg, err := exec.LookPath("rg")
	if err != nil {
		return nil, fault.ErrCommandFailed("ripgrep (rg) is not installed", err).
			WithSuggestion("Install ripgrep to enable content search")
	}

	args := []string{"--json", "--regexp", pattern}
	if fileGlob != "" {
		args = append(args, "--glob", fileGlob)
	}
	args = append(args, "--", resolved)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, rg, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Exit status 1 means no matches
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fault.ErrCommandFailed("Search failed: "+strings.TrimSpace(stderr.String()), err)
		}
	}

	return parseRipgrepJSON(stdout.Bytes()), nil
}

// parseRipgrepJSON extracts match events from rg's JSON Lines output
func parseRipgrepJSON(out []byte) []Match {
	matches := []Match{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			continue
		}

		event := gjson.ParseBytes(line)
		if event.Get("type").String() != "match" {
			continue
		}

		data := event.Get("data")
		matches = append(matches, Match{
			Path:    data.Get("path.text").String(),
			Line:    data.Get("line_number").Int(),
			Content: strings.TrimRight(data.Get("lines.text").String(), "\r\n"),
		})
	}
	return matches
}
