//go:build unix

// Package process provides liveness checks and termination primitives for
// detached build processes. Everything operates on bare PIDs because the
// processes involved are never children of the caller.
package process

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// IsAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending a signal.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil
}

// Terminate sends SIGTERM to the process group led by pid, falling back to
// the single process when it leads no group.
func Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// Kill force-kills the process group led by pid, falling back to the single
// process when it leads no group.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}

// SessionID returns the session ID of the given process, or -1 on error.
func SessionID(pid int) int {
	sid, err := unix.Getsid(pid)
	if err != nil {
		return -1
	}
	return sid
}

// WaitForExit polls until the given PID exits or the timeout is reached.
// Returns true if the process exited within the timeout, false if it's still alive.
func WaitForExit(pid int, timeout time.Duration) bool {
	if pid <= 0 || !IsAlive(pid) {
		return true
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return !IsAlive(pid)
		case <-ticker.C:
			if !IsAlive(pid) {
				return true
			}
		}
	}
}
