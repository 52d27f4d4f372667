package portprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// LsofLookup shells out to lsof. On some platforms listening sockets owned
// by other users are only visible this way.
type LsofLookup struct {
	binary string
}

// NewLsofLookup creates a lookup using the lsof found on PATH
func NewLsofLookup() *LsofLookup {
	return &LsofLookup{binary: "lsof"}
}

// Name implements PortOwnerLookup
func (l *LsofLookup) Name() string {
	return "lsof"
}

// LookupOwners implements PortOwnerLookup
func (l *LsofLookup) LookupOwners(ctx context.Context, port int) ([]int, error) {
	path, err := exec.LookPath(l.binary)
	if err != nil {
		return nil, fmt.Errorf("lsof not available: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-t")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// lsof exits 1 when nothing matches
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && strings.TrimSpace(stdout.String()) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parsePIDList(stdout.String()), nil
}

// parsePIDList parses one pid per line, ignoring anything else
func parsePIDList(out string) []int {
	var pids []int
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
