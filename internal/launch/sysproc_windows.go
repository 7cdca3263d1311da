//go:build windows

package launch

import "syscall"

// DETACHED_PROCESS is the Windows process creation flag that creates a process
// without a console window, allowing it to run independently of the parent.
const DETACHED_PROCESS = 0x00000008

// detachedSysProcAttr detaches the child from the parent console and process
// group so console closure and Ctrl+C never reach it.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | DETACHED_PROCESS,
	}
}
