package launcher

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// PIDAlive reports whether a process with the given pid exists. EPERM
// counts as alive: the process is there, we just may not signal it.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ShutdownPID stops a process this launcher did not parent, for gateways
// recorded by an earlier invocation: SIGTERM, poll until the grace period
// elapses, then SIGKILL. A pid that is already gone is not an error.
func ShutdownPID(pid int, grace time.Duration) error {
	if !PIDAlive(pid) {
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !PIDAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}
