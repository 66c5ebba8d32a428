package recap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/guard"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/ptyrun"
	"github.com/asheshgoplani/agent-recap/internal/scrub"
	"github.com/asheshgoplani/agent-recap/internal/session"
	"github.com/asheshgoplani/agent-recap/internal/statedb"
	"github.com/asheshgoplani/agent-recap/internal/transcript"
)

var workerLog = logging.ForComponent(logging.CompWorker)

// HistoryRecorder stores one row per finished run.
type HistoryRecorder interface {
	RecordRun(run *statedb.RunRow) error
}

// Options carries the summarizer and artifact settings a worker runs with.
type Options struct {
	Command    string
	Args       []string
	PromptMode ptyrun.PromptMode
	Timeout    time.Duration
	Grace      time.Duration

	MaxConversationChars int
	Artifact             ArtifactOptions
}

// OptionsFromConfig maps the user config onto worker options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Command:              cfg.Summarizer.Command,
		Args:                 cfg.Summarizer.Args,
		PromptMode:           ptyrun.PromptMode(cfg.Summarizer.PromptMode),
		Timeout:              cfg.Summarizer.Timeout(),
		Grace:                cfg.Summarizer.Grace(),
		MaxConversationChars: cfg.Transcript.MaxConversationChars,
		Artifact: ArtifactOptions{
			Dir:    cfg.Artifact.Dir,
			Format: cfg.Artifact.Format,
		},
	}
}

// Worker runs one summarization end to end. It is the failure boundary of
// the pipeline: every error ends up on the session record, never in the
// host tool.
type Worker struct {
	Store   *session.Store
	Runner  ptyrun.Runner
	History HistoryRecorder // optional
	Options Options
	// Env is this process's environment. Nil means os.Environ().
	Env []string
	// CrashLog receives the in-memory log tail when the worker panics.
	CrashLog string

	now func() time.Time
}

func (w *Worker) env() []string {
	if w.Env != nil {
		return w.Env
	}
	return os.Environ()
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// Run summarizes the turn described by task. The returned error is for the
// caller's log only; the session record already reflects the outcome.
func (w *Worker) Run(ctx context.Context, task Task) (err error) {
	if guard.Active(w.env()) {
		workerLog.Debug("worker_skipped_child", slog.String("session", task.SessionID))
		return nil
	}
	if task.SessionID == "" {
		return ErrNoSession
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			workerLog.Error("worker_panic",
				slog.String("session", task.SessionID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			if w.CrashLog != "" {
				if derr := logging.DumpRingBuffer(w.CrashLog); derr != nil {
					workerLog.Error("crash_dump_failed", slog.String("error", derr.Error()))
				}
			}
			w.fail(task, w.clock(), nil, err)
		}
	}()

	started := w.clock()

	reply, terr := transcript.LastAssistantText(task.TranscriptPath)
	if terr != nil {
		workerLog.Warn("transcript_read_incomplete",
			slog.String("session", task.SessionID),
			slog.String("path", task.TranscriptPath),
			slog.String("error", terr.Error()))
	}

	rec, err := w.Store.Update(task.SessionID, func(r *session.Record) error {
		if task.Cwd != "" {
			r.Cwd = task.Cwd
		}
		if last, ok := r.LastEntry(); ok && last.Role == session.RoleUser && reply != "" {
			r.Append(session.Entry{Role: session.RoleAssistant, Text: reply, Timestamp: w.clock()}, w.Store.MaxTurns())
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("record reply: %w", err)
		w.fail(task, started, nil, err)
		return err
	}

	conversation := ConversationText(rec.Exchanges(), w.Options.MaxConversationChars)
	if conversation == "" {
		workerLog.Info("nothing_to_summarize", slog.String("session", task.SessionID))
		if err := w.Store.SetStatus(task.SessionID, session.StatusIdle, ""); err != nil {
			return fmt.Errorf("mark idle: %w", err)
		}
		return nil
	}

	cwd := rec.Cwd
	pc := LoadProjectContext(ctx, cwd)
	req := ptyrun.Request{
		Command:    w.Options.Command,
		Args:       w.Options.Args,
		Prompt:     BuildPrompt(conversation, pc),
		PromptMode: w.Options.PromptMode,
		Env:        guard.Mark(w.env()),
		Dir:        existingDir(cwd),
		Timeout:    w.Options.Timeout,
		Grace:      w.Options.Grace,
	}
	workerLog.Info("summarizer_run",
		slog.String("session", task.SessionID),
		slog.Int("conversation_chars", len(conversation)),
		slog.Duration("timeout", req.Timeout))

	res, err := w.Runner.Run(ctx, req)
	if err != nil {
		w.fail(task, started, res, err)
		return err
	}

	cleaned := scrub.Clean(res.Output)
	sum := ParseSummary(cleaned)
	path := ""
	switch {
	case sum == (session.Summary{}):
		// A clean exit with nothing to say is an empty summary, not a
		// failure. The previous artifact stays in place.
		workerLog.Info("summary_empty", slog.String("session", task.SessionID))
	default:
		if sum.Raw != "" {
			workerLog.Warn("summary_unparsed", slog.String("session", task.SessionID), slog.Int("raw_len", len(sum.Raw)))
		}
		path, err = WriteArtifact(cwd, w.Options.Artifact, sum)
		if err != nil {
			w.fail(task, started, res, err)
			return err
		}
	}

	if _, err := w.Store.Update(task.SessionID, func(r *session.Record) error {
		r.Status = session.StatusDone
		r.LastSummary = &sum
		r.LastError = ""
		r.WorkerPID = 0
		return nil
	}); err != nil {
		workerLog.Error("mark_done_failed", slog.String("session", task.SessionID), slog.String("error", err.Error()))
	}
	w.record(task, cwd, started, res, statedb.RunDone, "", sum)
	workerLog.Info("summary_written",
		slog.String("session", task.SessionID),
		slog.String("path", path),
		slog.Bool("structured", sum.Structured()),
		slog.Duration("duration", res.Duration))
	return nil
}

// fail marks the session failed and logs the run. The artifact is not touched.
func (w *Worker) fail(task Task, started time.Time, res *ptyrun.Result, cause error) {
	workerLog.Error("summary_failed",
		slog.String("session", task.SessionID),
		slog.Bool("timeout", errors.Is(cause, ptyrun.ErrTimeout)),
		slog.String("error", cause.Error()))

	cwd := task.Cwd
	if _, err := w.Store.Update(task.SessionID, func(r *session.Record) error {
		r.Status = session.StatusFailed
		r.LastError = cause.Error()
		r.WorkerPID = 0
		if cwd == "" {
			cwd = r.Cwd
		}
		return nil
	}); err != nil {
		workerLog.Error("mark_failed_failed", slog.String("session", task.SessionID), slog.String("error", err.Error()))
	}
	w.record(task, cwd, started, res, statedb.RunFailed, cause.Error(), session.Summary{})
}

func (w *Worker) record(task Task, cwd string, started time.Time, res *ptyrun.Result, status, errMsg string, sum session.Summary) {
	if w.History == nil {
		return
	}
	run := &statedb.RunRow{
		SessionID:    task.SessionID,
		Cwd:          cwd,
		Status:       status,
		StartedAt:    started,
		FinishedAt:   w.clock(),
		Error:        errMsg,
		UserSummary:  sum.UserSummary,
		AgentSummary: sum.AgentSummary,
		Raw:          sum.Raw,
	}
	if res != nil {
		run.ExitCode = res.ExitCode
	}
	if err := w.History.RecordRun(run); err != nil {
		workerLog.Warn("history_write_failed", slog.String("session", task.SessionID), slog.String("error", err.Error()))
	}
}

func existingDir(dir string) string {
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
