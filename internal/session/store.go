package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/fsutil"
	"github.com/asheshgoplani/agent-recap/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// ErrNotFound is returned by Load when no record exists for a session.
var ErrNotFound = errors.New("session record not found")

const maxIDLen = 128

// Store reads and writes session records under one directory.
type Store struct {
	dir      string
	maxTurns int
	now      func() time.Time
}

// NewStore creates a store rooted at dir that caps transcripts at maxTurns entries.
func NewStore(dir string, maxTurns int) *Store {
	return &Store{dir: dir, maxTurns: maxTurns, now: time.Now}
}

// Dir returns the directory records are written to.
func (s *Store) Dir() string { return s.dir }

// MaxTurns returns the transcript cap.
func (s *Store) MaxTurns() int { return s.maxTurns }

// FileID maps a host session id onto a safe file name stem.
func FileID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > maxIDLen {
		out = out[:maxIDLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}

// Path returns the record file for a session.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, FileID(id)+".json")
}

func (s *Store) lockPath(id string) string {
	return filepath.Join(s.dir, FileID(id)+".lock")
}

// Load reads the record for id. A missing record yields ErrNotFound.
func (s *Store) Load(id string) (*Record, error) {
	return readRecord(s.Path(id))
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// Update runs fn on the current record for id (creating an idle one if none
// exists) and persists the result. The whole cycle holds the session lock,
// so an accumulator append and a worker status change cannot overwrite each
// other. If fn returns an error nothing is written.
func (s *Store) Update(id string, fn func(*Record) error) (*Record, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	unlock, err := lockFile(s.lockPath(id))
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	defer unlock()

	now := s.now()
	rec, err := s.Load(id)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{ID: id, Status: StatusIdle, CreatedAt: now}
	case err != nil:
		// A corrupt record is replaced rather than blocking the pipeline forever.
		storeLog.Warn("record_unreadable_reset", slog.String("session", id), slog.String("error", err.Error()))
		rec = &Record{ID: id, Status: StatusIdle, CreatedAt: now}
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = now
	if err := s.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.Path(rec.ID), data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	storeLog.Debug("record_saved",
		slog.String("session", rec.ID),
		slog.String("status", string(rec.Status)),
		slog.Int("turns", len(rec.Transcript)),
	)
	return nil
}

// RecordTurn appends one transcript entry for id, evicting the oldest
// entries beyond the store's cap.
func (s *Store) RecordTurn(id, role, text string) (*Record, error) {
	return s.Update(id, func(r *Record) error {
		r.Append(Entry{Role: role, Text: text, Timestamp: s.now()}, s.maxTurns)
		return nil
	})
}

// StartTurn records a user prompt at turn start: the prompt is appended,
// the working directory refreshed and the session marked working.
func (s *Store) StartTurn(id, cwd, prompt string) (*Record, error) {
	return s.Update(id, func(r *Record) error {
		if cwd != "" {
			r.Cwd = cwd
		}
		r.Append(Entry{Role: RoleUser, Text: prompt, Timestamp: s.now()}, s.maxTurns)
		r.Status = StatusWorking
		return nil
	})
}

// SetStatus sets the status of id. errMsg is stored as LastError; it is
// cleared whenever the status is not failed.
func (s *Store) SetStatus(id string, status Status, errMsg string) error {
	_, err := s.Update(id, func(r *Record) error {
		r.Status = status
		if status == StatusFailed {
			r.LastError = errMsg
		} else {
			r.LastError = ""
		}
		return nil
	})
	return err
}

// List returns every readable record, most recently updated first.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rec, err := readRecord(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			storeLog.Debug("record_skipped", slog.String("file", entry.Name()), slog.String("error", err.Error()))
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Prune removes records not updated since cutoff, with their lock files.
// Sessions still summarizing are kept. Returns the removed session ids.
func (s *Store) Prune(cutoff time.Time) ([]string, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, rec := range records {
		if !rec.UpdatedAt.Before(cutoff) || rec.Status == StatusSummarizing {
			continue
		}
		if err := os.Remove(s.Path(rec.ID)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", rec.ID, err)
		}
		_ = os.Remove(s.lockPath(rec.ID))
		removed = append(removed, rec.ID)
	}
	return removed, nil
}
