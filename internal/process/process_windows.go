//go:build windows

// Package process provides liveness checks and termination primitives for
// detached build processes. Everything operates on bare PIDs because the
// processes involved are never children of the caller.
package process

import (
	"os"
	"time"
)

// IsAlive checks if a process with the given PID exists.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal(nil) probes the handle without delivering anything.
	return p.Signal(nil) == nil
}

// Terminate asks the process to exit. Windows has no SIGTERM equivalent for
// unrelated processes, so this kills directly.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill force-kills the process.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// SessionID is not meaningful on Windows; always returns -1.
func SessionID(pid int) int {
	return -1
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
