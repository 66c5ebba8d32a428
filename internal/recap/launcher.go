// Package recap is the turn-completion pipeline: the launcher that runs
// inside hook invocations and the detached worker that produces the summary.
package recap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/asheshgoplani/agent-recap/internal/guard"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

var hookLog = logging.ForComponent(logging.CompHook)

// ErrNoSession is returned for events without a session id.
var ErrNoSession = errors.New("event has no session_id")

// Event is the JSON payload the host tool sends to a hook on stdin.
type Event struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
	Prompt         string `json:"prompt,omitempty"`
}

// Launcher handles the synchronous part of each hook: it touches the session
// record and, at turn end, hands the rest to a detached worker. It never
// blocks on the summarizer.
type Launcher struct {
	Store   *session.Store
	Spawner Spawner
	// Env is checked by the recursion guard. Nil means os.Environ().
	Env []string
}

func (l *Launcher) env() []string {
	if l.Env != nil {
		return l.Env
	}
	return os.Environ()
}

// OnTurnStart appends the user's prompt to the session transcript and marks
// the session working. Events from inside a summarizer run and empty
// prompts are ignored.
func (l *Launcher) OnTurnStart(ev Event) error {
	if guard.Active(l.env()) {
		hookLog.Debug("turn_start_skipped_child", slog.String("session", ev.SessionID))
		return nil
	}
	if ev.SessionID == "" {
		return ErrNoSession
	}
	if strings.TrimSpace(ev.Prompt) == "" {
		return nil
	}

	rec, err := l.Store.StartTurn(ev.SessionID, ev.Cwd, ev.Prompt)
	if err != nil {
		return fmt.Errorf("record prompt: %w", err)
	}
	hookLog.Info("turn_start",
		slog.String("session", ev.SessionID),
		slog.Int("turns", len(rec.Transcript)))
	return nil
}

// OnTurnEnd marks the session summarizing and spawns the worker. It returns
// as soon as the worker process has started.
func (l *Launcher) OnTurnEnd(ev Event) error {
	if guard.Active(l.env()) {
		hookLog.Debug("turn_end_skipped_child", slog.String("session", ev.SessionID))
		return nil
	}
	if ev.SessionID == "" {
		return ErrNoSession
	}

	rec, err := l.Store.Update(ev.SessionID, func(r *session.Record) error {
		if ev.Cwd != "" {
			r.Cwd = ev.Cwd
		}
		r.Status = session.StatusSummarizing
		r.LastError = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark summarizing: %w", err)
	}

	task := Task{SessionID: ev.SessionID, Cwd: rec.Cwd, TranscriptPath: ev.TranscriptPath}
	pid, err := l.Spawner.Spawn(task)
	if err != nil {
		if serr := l.Store.SetStatus(ev.SessionID, session.StatusFailed, "spawn worker: "+err.Error()); serr != nil {
			hookLog.Error("status_update_failed", slog.String("session", ev.SessionID), slog.String("error", serr.Error()))
		}
		return fmt.Errorf("spawn worker: %w", err)
	}

	// Only the pid is touched, so a worker that already finished keeps its status.
	if _, err := l.Store.Update(ev.SessionID, func(r *session.Record) error {
		r.WorkerPID = pid
		return nil
	}); err != nil {
		hookLog.Warn("worker_pid_not_recorded", slog.String("session", ev.SessionID), slog.String("error", err.Error()))
	}
	hookLog.Info("worker_spawned",
		slog.String("session", ev.SessionID),
		slog.Int("pid", pid))
	return nil
}
