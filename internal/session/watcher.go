package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of events one atomic save produces.
const debounceWindow = 100 * time.Millisecond

// Watcher reports session records as they change on disk. It watches the
// store directory with fsnotify, or polls modification times when events
// are not reliable there.
type Watcher struct {
	dir      string
	onChange func(*Record)

	// PollInterval, when non-zero, replaces fsnotify with polling.
	PollInterval time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // file -> last delivered mtime
}

// NewWatcher creates a watcher for dir. onChange receives each record that
// was created or rewritten.
func NewWatcher(dir string, onChange func(*Record)) *Watcher {
	return &Watcher{dir: dir, onChange: onChange, seen: make(map[string]time.Time)}
}

// Run delivers changes until ctx is done. Existing records are delivered
// once at startup.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if w.PollInterval > 0 {
		return w.poll(ctx)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.scan()

	var debounceTimer *time.Timer
	pendingFiles := make(map[string]bool)
	var pendingMu sync.Mutex
	defer func() {
		pendingMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		pendingMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRecordFile(event.Name) {
				continue
			}
			// Atomic saves arrive as Create (rename into place).
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			pendingMu.Lock()
			pendingFiles[event.Name] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceWindow, func() {
				pendingMu.Lock()
				files := make([]string, 0, len(pendingFiles))
				for f := range pendingFiles {
					files = append(files, f)
				}
				pendingFiles = make(map[string]bool)
				pendingMu.Unlock()

				for _, f := range files {
					w.deliver(f)
				}
			})
			pendingMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			storeLog.Warn("session_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	w.scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
		}
	}
}

// scan delivers every record whose mtime moved since it was last delivered.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		w.deliver(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) deliver(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	if last, ok := w.seen[path]; ok && !info.ModTime().After(last) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = info.ModTime()
	w.mu.Unlock()

	rec, err := readRecord(path)
	if err != nil {
		storeLog.Debug("session_watcher_skip", slog.String("file", filepath.Base(path)), slog.String("error", err.Error()))
		return
	}
	if w.onChange != nil {
		w.onChange(rec)
	}
}

func isRecordFile(name string) bool {
	base := filepath.Base(name)
	return filepath.Ext(base) == ".json" && !strings.HasPrefix(base, ".")
}
