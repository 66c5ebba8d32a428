package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/guard"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/recap"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

var hookLog = logging.ForComponent(logging.CompHook)

// Hook event names sent by the host tool.
const (
	hookTurnStart = "UserPromptSubmit"
	hookTurnEnd   = "Stop"
)

// maxHookPayload bounds what is read from stdin. Payloads are small JSON
// objects; the transcript itself is passed by path.
const maxHookPayload = 1 << 20

var errNoPayload = errors.New("no hook payload on stdin")

// readHookPayload decodes the event JSON from in. An interactive terminal on
// stdin means someone ran the command by hand, so nothing is read.
func readHookPayload(in io.Reader) (recap.Event, error) {
	var ev recap.Event
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return ev, errNoPayload
	}
	data, err := io.ReadAll(io.LimitReader(in, maxHookPayload))
	if err != nil {
		return ev, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return ev, errNoPayload
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode payload: %w", err)
	}
	return ev, nil
}

// discardPayload reads and drops whatever the host wrote to stdin.
func discardPayload(in io.Reader) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(in, maxHookPayload))
}

// handleHookCommand runs one hook invocation. It never writes to stdout or
// stderr and never fails: the host tool's turn takes precedence over
// anything that goes wrong here.
func handleHookCommand(cfg *config.Config, event string) {
	// Inside a summarizer run there is nothing to do, but the payload is
	// still consumed so the host's write to our stdin never hits a closed pipe.
	if guard.Active(os.Environ()) {
		discardPayload(os.Stdin)
		return
	}
	launcher, err := newLauncher(cfg)
	if err != nil {
		hookLog.Error("launcher_init_failed", slog.String("error", err.Error()))
		return
	}
	runHook(launcher, event, os.Stdin)
}

// runHook decodes the payload from in and dispatches it. event overrides the
// payload's hook_event_name when set.
func runHook(l *recap.Launcher, event string, in io.Reader) {
	ev, err := readHookPayload(in)
	if err != nil {
		if !errors.Is(err, errNoPayload) {
			hookLog.Warn("hook_payload_invalid", slog.String("error", err.Error()))
		}
		return
	}
	if event == "" {
		event = ev.HookEventName
	}

	switch event {
	case hookTurnStart:
		err = l.OnTurnStart(ev)
	case hookTurnEnd:
		err = l.OnTurnEnd(ev)
	default:
		hookLog.Debug("hook_event_ignored", slog.String("event", event))
		return
	}
	if err != nil {
		hookLog.Error("hook_failed",
			slog.String("event", event),
			slog.String("session", ev.SessionID),
			slog.String("error", err.Error()))
	}
}

func newStore(cfg *config.Config) (*session.Store, error) {
	dir, err := config.GetSessionsDir()
	if err != nil {
		return nil, err
	}
	return session.NewStore(dir, cfg.Transcript.MaxTurns), nil
}

func newLauncher(cfg *config.Config) (*recap.Launcher, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &recap.Launcher{
		Store:   store,
		Spawner: &recap.ProcessSpawner{Executable: exe},
	}, nil
}
