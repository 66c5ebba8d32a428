package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/platform"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

func handleWatch(cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	poll := fs.Duration("poll", 0, "Poll at this interval instead of using filesystem events")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agent-recap watch [--poll 2s]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Print a line whenever a session record changes. Ctrl+C to stop.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	dir, err := config.GetSessionsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	interval := *poll
	if interval == 0 {
		if warning := platform.CheckFsnotifySupport(dir); warning != "" {
			fmt.Fprintf(os.Stderr, "%s, polling every 2s\n", warning)
			interval = 2 * time.Second
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	w := session.NewWatcher(dir, func(r *session.Record) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, formatWatchLine(r))
	})
	w.PollInterval = interval
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func formatWatchLine(r *session.Record) string {
	ts := r.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s %s %s %s",
		dimStyle.Render(ts.Local().Format("15:04:05")),
		pad(shortID(r.ID), colID),
		renderStatus(string(r.Status)),
		truncate(recordSummary(r), colSummary))
}
