//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package ptyrun

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// disableEcho turns off ECHO on the slave so a prompt written to the master
// is not copied back into the output stream. Canonical mode stays on so ^D
// still delivers end-of-file.
func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	t.Lflag &^= unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}
