//go:build windows

package ptyrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// PipeRunner is the Windows fallback. There is no pty to hand the child, so
// it gets plain pipes in a new process group and the same deadline handling.
type PipeRunner struct{}

// New returns the runner for this platform.
func New() Runner { return &PipeRunner{} }

func (r *PipeRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	cmd := exec.Command(req.Command, req.argv()...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	if req.mode() == PromptStdin {
		cmd.Stdin = strings.NewReader(req.Prompt + "\n")
	}
	out := &syncBuffer{}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", req.Command, err)
	}
	pid := cmd.Process.Pid

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer, stop := deadline(req.Timeout)
	defer stop()

	select {
	case waitErr := <-waitDone:
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
		runLog.Warn("summarizer_timeout", slog.Int("pid", pid), slog.Duration("timeout", req.Timeout))
	case <-ctx.Done():
		runLog.Warn("summarizer_cancelled", slog.Int("pid", pid), slog.String("reason", ctx.Err().Error()))
	}

	// No SIGTERM on Windows; the grace period is spent waiting after Kill.
	_ = cmd.Process.Kill()
	select {
	case <-waitDone:
	case <-time.After(req.grace()):
		runLog.Error("summarizer_unreaped", slog.Int("pid", pid))
	}
	return &Result{Output: out.Bytes(), ExitCode: -1, Duration: time.Since(started)}, ErrTimeout
}
