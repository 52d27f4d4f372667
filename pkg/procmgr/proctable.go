package procmgr

import (
	"errors"
	"sync"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

var (
	procFSOnce sync.Once
	procFS     *procfs.FS
)

// defaultProcFS returns the /proc filesystem, or nil where there is none
func defaultProcFS() *procfs.FS {
	procFSOnce.Do(func() {
		fs, err := procfs.NewDefaultFS()
		if err != nil {
			return
		}
		if _, err := fs.Self(); err != nil {
			return
		}
		procFS = &fs
	})
	return procFS
}

// pidAlive reports whether pid exists and is not a zombie
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}

	return !isZombie(pid)
}

func isZombie(pid int) bool {
	if fs := defaultProcFS(); fs != nil {
		proc, err := fs.Proc(pid)
		if err != nil {
			return false
		}
		stat, err := proc.Stat()
		if err != nil {
			return false
		}
		return stat.State == "Z"
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	states, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range states {
		if s == process.Zombie {
			return true
		}
	}
	return false
}

// descendantsOf returns every live descendant of pid, children first
func descendantsOf(pid int) []int {
	if fs := defaultProcFS(); fs != nil {
		if pids, err := descendantsFromProcFS(fs, pid); err == nil {
			return pids
		}
	}
	return descendantsFromPsutil(pid)
}

func descendantsFromProcFS(fs *procfs.FS, root int) ([]int, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	children := make(map[int][]int)
	for _, proc := range procs {
		stat, err := proc.Stat()
		if err != nil {
			continue
		}
		children[stat.PPID] = append(children[stat.PPID], proc.PID)
	}

	var out []int
	queue := []int{root}
	seen := map[int]bool{root: true}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

func descendantsFromPsutil(root int) []int {
	p, err := process.NewProcess(int32(root))
	if err != nil {
		return nil
	}

	var out []int
	queue := []*process.Process{p}
	seen := map[int32]bool{int32(root): true}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		children, err := next.Children()
		if err != nil {
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			out = append(out, int(child.Pid))
			queue = append(queue, child)
		}
	}
	return out
}

// processName returns the short name of pid, or "" when unknown
func processName(pid int) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}
