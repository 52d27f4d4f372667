package portprobe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/procfs"
)

// DefaultProcMount is where procfs is expected
const DefaultProcMount = procfs.DefaultMountPoint

// tcpListen is the kernel's TCP_LISTEN state in /proc/net/tcp
const tcpListen = 0x0A

// ProcfsLookup reads /proc/net/tcp{,6} and maps socket inodes to pids
// through each process's file descriptor table
type ProcfsLookup struct {
	fs procfs.FS
}

// NewProcfsLookup creates a lookup rooted at mountPoint
func NewProcfsLookup(mountPoint string) (*ProcfsLookup, error) {
	if _, err := os.Stat(filepath.Join(mountPoint, "net", "tcp")); err != nil {
		return nil, fmt.Errorf("procfs net table unavailable: %w", err)
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcfsLookup{fs: fs}, nil
}

// Name implements PortOwnerLookup
func (l *ProcfsLookup) Name() string {
	return "procfs"
}

// LookupOwners implements PortOwnerLookup
func (l *ProcfsLookup) LookupOwners(ctx context.Context, port int) ([]int, error) {
	inodes, err := l.listeningInodes(port)
	if err != nil {
		return nil, err
	}
	if len(inodes) == 0 {
		return nil, nil
	}

	procs, err := l.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var owners []int
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return owners, err
		}

		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			// Other users' fd tables are unreadable; vanished pids too.
			continue
		}
		for _, target := range targets {
			if inodes[target] {
				owners = append(owners, proc.PID)
				break
			}
		}
	}
	return owners, nil
}

// listeningInodes returns "socket:[inode]" targets listening on port
func (l *ProcfsLookup) listeningInodes(port int) (map[string]bool, error) {
	inodes := make(map[string]bool)

	v4, err := l.fs.NetTCP()
	if err != nil {
		return nil, fmt.Errorf("read tcp table: %w", err)
	}
	for _, line := range v4 {
		if line.St == tcpListen && line.LocalPort == uint64(port) {
			inodes[socketTarget(line.Inode)] = true
		}
	}

	// tcp6 is absent when IPv6 is disabled
	if v6, err := l.fs.NetTCP6(); err == nil {
		for _, line := range v6 {
			if line.St == tcpListen && line.LocalPort == uint64(port) {
				inodes[socketTarget(line.Inode)] = true
			}
		}
	}

	return inodes, nil
}

func socketTarget(inode uint64) string {
	return "socket:[" + strconv.FormatUint(inode, 10) + "]"
}
