//go:build unix

package procmgr

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/poucet/maestro/pkg/fault"
)

// newProcAttr puts the child in its own process group so it and its
// descendants can be signaled together
func newProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalTarget resolves the group to signal for pid. It returns 0 when
// only pid itself should be signaled: the group is unknown, or it is the
// supervisor's own group.
func signalTarget(pid int, owned bool) int {
	if owned {
		return pid
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil || pgid <= 0 || pgid == unix.Getpgrp() {
		return 0
	}
	return pgid
}

// sendSignal signals the group when pgid > 0, falling back to the single
// pid. A process that no longer exists is not an error.
func sendSignal(pid, pgid int, sig unix.Signal) error {
	var err error
	if pgid > 0 {
		err = unix.Kill(-pgid, sig)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.ESRCH) {
			return signalError(pid, sig, err)
		}
	}

	err = unix.Kill(pid, sig)
	switch {
	case err == nil, errors.Is(err, unix.ESRCH):
		return nil
	default:
		return signalError(pid, sig, err)
	}
}

// killPID force-kills a single pid, ignoring processes that are gone
func killPID(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return signalError(pid, unix.SIGKILL, err)
	}
	return nil
}

func signalError(pid int, sig unix.Signal, err error) error {
	if errors.Is(err, unix.EPERM) {
		return fault.ErrPermission(fmt.Sprintf("Not permitted to send %s to process %d", unix.SignalName(sig), pid), err)
	}
	return fmt.Errorf("send %s to %d: %w", unix.SignalName(sig), pid, err)
}
