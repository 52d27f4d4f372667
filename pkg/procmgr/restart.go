package procmgr

import (
	"strconv"
	"time"
)

// watch waits for an owned run to end: the output stream reports end of
// data and the exit status is observable. An exit nobody asked for clears
// the run and schedules a bounded automatic restart.
func (s *Supervisor) watch(r *run) {
	defer s.wg.Done()

	if r.output != nil {
		<-r.output.Done()
	}
	<-r.exited

	s.mu.Lock()
	if s.run != r {
		// Stopped or replaced through the lifecycle methods.
		s.mu.Unlock()
		return
	}

	s.logger.Warn("process exited", "pid", r.pid, "run_id", r.id, "exit_code", r.exitCode, "error", r.exitErr)
	s.teardownLocked(r, EndReasonExited)
	s.publish(EventExited, "Process exited", map[string]string{
		"pid":       strconv.Itoa(r.pid),
		"exit_code": strconv.Itoa(r.exitCode),
	})

	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.restartCount >= s.cfg.MaxRestartAttempts {
		s.logger.Warn("maximum restart attempts reached, not restarting",
			"attempts", s.restartCount, "max", s.cfg.MaxRestartAttempts)
		s.mu.Unlock()
		return
	}

	s.restartCount++
	attempt := s.restartCount
	epoch := s.epoch
	delay := s.cfg.RestartDelay
	s.mu.Unlock()

	s.metrics.Restart("auto")
	s.publish(EventRestarting, "Scheduling automatic restart", map[string]string{
		"attempt": strconv.Itoa(attempt),
		"delay":   delay.String(),
	})
	s.logger.Info("restarting process", "attempt", attempt, "max", s.cfg.MaxRestartAttempts, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.shutdownCtx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Any explicit lifecycle call during the delay supersedes this restart.
	if s.closed || s.epoch != epoch || s.run != nil {
		s.logger.Debug("automatic restart superseded", "attempt", attempt)
		return
	}

	// Fresh spawn without resetting the counter: whatever holds the port now
	// may be unrelated.
	if _, err := s.startLocked(true, false); err != nil {
		s.fail("auto-restart", err)
	}
}
