package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/ptyrun"
	"github.com/asheshgoplani/agent-recap/internal/recap"
	"github.com/asheshgoplani/agent-recap/internal/statedb"
)

var workerLog = logging.ForComponent(logging.CompWorker)

// crashLogName receives the in-memory log tail when a worker panics.
const crashLogName = "crash.log"

// handleWorker is the detached half of the pipeline, started by the stop
// hook as "agent-recap worker --session ID --cwd DIR --transcript PATH".
func handleWorker(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	sessionID := fs.String("session", "", "host session id")
	cwd := fs.String("cwd", "", "session working directory")
	transcriptPath := fs.String("transcript", "", "host transcript JSONL")
	if err := fs.Parse(args); err != nil {
		workerLog.Error("worker_bad_args", slog.String("error", err.Error()))
		return
	}

	store, err := newStore(cfg)
	if err != nil {
		workerLog.Error("worker_store_failed", slog.String("error", err.Error()))
		return
	}

	// A signal to the worker cancels the summarizer, which kills its group.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &recap.Worker{
		Store:   store,
		Runner:  ptyrun.New(),
		Options: recap.OptionsFromConfig(cfg),
	}
	if base, err := config.GetBaseDir(); err == nil {
		w.CrashLog = filepath.Join(base, crashLogName)
	}
	if db := openHistory(cfg); db != nil {
		defer db.Close()
		w.History = db
	}

	started := time.Now()
	task := recap.Task{SessionID: *sessionID, Cwd: *cwd, TranscriptPath: *transcriptPath}
	if err := w.Run(ctx, task); err != nil {
		workerLog.Error("worker_failed",
			slog.String("session", task.SessionID),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(started)))
		return
	}
	workerLog.Info("worker_finished",
		slog.String("session", task.SessionID),
		slog.Duration("elapsed", time.Since(started)))
}

// openHistory opens the run history, or returns nil when it is disabled or
// unavailable. History is never allowed to fail a run.
func openHistory(cfg *config.Config) *statedb.StateDB {
	if !cfg.History.GetEnabled() {
		return nil
	}
	path, err := config.GetHistoryDBPath()
	if err != nil {
		return nil
	}
	db, err := statedb.Open(path)
	if err != nil {
		logging.ForComponent(logging.CompHistory).Warn("history_open_failed", slog.String("error", err.Error()))
		return nil
	}
	if err := db.Migrate(); err != nil {
		logging.ForComponent(logging.CompHistory).Warn("history_migrate_failed", slog.String("error", err.Error()))
		db.Close()
		return nil
	}
	return db
}
