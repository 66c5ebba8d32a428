//go:build !windows

package recap

import "syscall"

// detachAttrs puts the worker in its own session so it survives the hook
// process and any signal sent to the host tool's process group.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
