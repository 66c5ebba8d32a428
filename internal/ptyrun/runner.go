// Package ptyrun runs a command-line tool the way an interactive terminal
// would, so tools that refuse to work without a TTY (or hang probing for one)
// behave, while the caller still collects the raw output and enforces a hard
// deadline.
package ptyrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/logging"
)

var runLog = logging.ForComponent(logging.CompRunner)

// PromptMode selects how the prompt reaches the child.
type PromptMode string

const (
	// PromptArg appends the prompt as the final argument.
	PromptArg PromptMode = "arg"
	// PromptStdin writes the prompt to the terminal followed by end-of-file.
	PromptStdin PromptMode = "stdin"
)

const (
	DefaultCols  = 200
	DefaultRows  = 50
	DefaultGrace = 5 * time.Second

	// drainWait bounds how long output is collected after the child exits.
	// Grandchildren that inherited the terminal can keep it open forever.
	drainWait = 2 * time.Second
)

// ErrTimeout is returned when the deadline (Request.Timeout or the context)
// passes before the child exits. The child's process group has been killed
// by the time it is returned.
var ErrTimeout = errors.New("summarizer timed out")

// ExitError reports a child that exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("summarizer exited with status %d", e.Code)
}

// Request describes one invocation.
type Request struct {
	Command    string
	Args       []string
	Prompt     string
	PromptMode PromptMode
	// Env is the complete child environment. Nil inherits the caller's.
	Env     []string
	Dir     string
	Timeout time.Duration
	Grace   time.Duration
	Cols    uint16
	Rows    uint16
}

// Result is what came back. Output holds raw terminal bytes, escape
// sequences included; ExitCode is -1 when the child was killed.
type Result struct {
	Output   []byte
	ExitCode int
	Duration time.Duration
}

// Runner runs one command to completion.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

func (r Request) argv() []string {
	args := append([]string(nil), r.Args...)
	if r.mode() == PromptArg && r.Prompt != "" {
		args = append(args, r.Prompt)
	}
	return args
}

func (r Request) mode() PromptMode {
	if r.PromptMode == PromptStdin {
		return PromptStdin
	}
	return PromptArg
}

func (r Request) grace() time.Duration {
	if r.Grace > 0 {
		return r.Grace
	}
	return DefaultGrace
}

func (r Request) size() (cols, rows uint16) {
	cols, rows = r.Cols, r.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	return cols, rows
}

func (r Request) validate() error {
	if r.Command == "" {
		return errors.New("empty command")
	}
	return nil
}

// syncBuffer is written by the reader goroutine and read by Run after the
// reader has either finished or been abandoned.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// deadline returns a channel that fires after d, or nil (never) when d <= 0.
func deadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
