//go:build !windows

package ptyrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// PTYRunner attaches the child to a fresh pseudo-terminal. The child becomes
// a session leader with the terminal as its controlling tty, so it has no
// path back to the caller's terminal and its whole process group can be
// signalled at once.
type PTYRunner struct{}

// New returns the runner for this platform.
func New() Runner { return &PTYRunner{} }

func (r *PTYRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	var closeOnce sync.Once
	closeMaster := func() { closeOnce.Do(func() { _ = ptmx.Close() }) }
	defer closeMaster()

	cols, rows := req.size()
	if err := pty.Setsize(tty, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		runLog.Debug("pty_setsize_failed", slog.String("error", err.Error()))
	}
	if req.mode() == PromptStdin {
		if err := disableEcho(tty); err != nil {
			runLog.Warn("pty_echo_off_failed", slog.String("error", err.Error()))
		}
	}

	cmd := exec.Command(req.Command, req.argv()...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = tty.Close()
		return nil, fmt.Errorf("start %s: %w", req.Command, err)
	}
	// Only the child holds the slave now, so its exit ends the stream.
	_ = tty.Close()
	pid := cmd.Process.Pid
	runLog.Debug("summarizer_started",
		slog.Int("pid", pid),
		slog.String("command", req.Command),
		slog.String("mode", string(req.mode())))

	out := &syncBuffer{}
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		// EIO is how Linux reports a master whose slave side is gone.
		_, _ = io.Copy(out, ptmx)
	}()

	if req.mode() == PromptStdin {
		go func() {
			// VEOF (^D) on an empty line ends the child's read.
			payload := req.Prompt + "\n\x04"
			if _, err := io.WriteString(ptmx, payload); err != nil && !errors.Is(err, os.ErrClosed) {
				runLog.Debug("pty_prompt_write_failed", slog.String("error", err.Error()))
			}
		}()
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer, stop := deadline(req.Timeout)
	defer stop()

	select {
	case waitErr := <-waitDone:
		waitFor(readDone, drainWait)
		closeMaster()
		waitFor(readDone, drainWait)

		res := &Result{Output: out.Bytes(), Duration: time.Since(started)}
		if waitErr != nil {
			var ee *exec.ExitError
			if errors.As(waitErr, &ee) {
				res.ExitCode = ee.ExitCode()
				return res, &ExitError{Code: res.ExitCode}
			}
			res.ExitCode = -1
			return res, fmt.Errorf("wait %s: %w", req.Command, waitErr)
		}
		return res, nil

	case <-timer:
		runLog.Warn("summarizer_timeout",
			slog.Int("pid", pid),
			slog.Duration("timeout", req.Timeout))
	case <-ctx.Done():
		runLog.Warn("summarizer_cancelled",
			slog.Int("pid", pid),
			slog.String("reason", ctx.Err().Error()))
	}

	terminateGroup(pid, waitDone, req.grace())
	closeMaster()
	waitFor(readDone, drainWait)
	return &Result{
		Output:   out.Bytes(),
		ExitCode: -1,
		Duration: time.Since(started),
	}, ErrTimeout
}

// terminateGroup sends SIGTERM to the child's process group, gives it grace
// to exit, then SIGKILLs whatever is left of the group.
func terminateGroup(pid int, waitDone <-chan error, grace time.Duration) {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		runLog.Debug("sigterm_failed", slog.Int("pid", pid), slog.String("error", err.Error()))
	}

	exited := false
	select {
	case <-waitDone:
		exited = true
	case <-time.After(grace):
	}

	// Members of the group may outlive the leader.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		runLog.Debug("sigkill_failed", slog.Int("pid", pid), slog.String("error", err.Error()))
	}
	if !exited {
		select {
		case <-waitDone:
		case <-time.After(grace):
			runLog.Error("summarizer_unreaped", slog.Int("pid", pid))
		}
	}
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}
