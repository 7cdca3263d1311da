//go:build unix

package launch

import "syscall"

// detachedSysProcAttr detaches the child from the controlling terminal.
// Setsid creates a new session; as session leader the child also leads its
// own process group, so terminal signals (SIGHUP, SIGINT) never reach it.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
