package sweep

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/process"
)

// killWait bounds how long a SIGKILL gets to take effect.
const killWait = 2 * time.Second

// terminate removes one process: graceful signal, grace period, then force.
// A process that disappears at any point is a benign race with the OS, not a
// failure.
func terminate(pid int, grace time.Duration) (Action, error) {
	if grace <= 0 {
		grace = 5 * time.Second
	}

	if !process.IsAlive(pid) {
		return ActionVanished, nil
	}

	if err := process.Terminate(pid); err != nil {
		if !process.IsAlive(pid) {
			return ActionVanished, nil
		}
		return ActionFailed, fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	if process.WaitForExit(pid, grace) {
		return ActionTerminated, nil
	}

	if err := process.Kill(pid); err != nil {
		if !process.IsAlive(pid) {
			return ActionVanished, nil
		}
		return ActionFailed, fmt.Errorf("failed to kill process %d: %w", pid, err)
	}

	if process.WaitForExit(pid, killWait) {
		return ActionKilled, nil
	}
	return ActionFailed, fmt.Errorf("process %d survived SIGKILL", pid)
}
