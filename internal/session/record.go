// Package session persists one JSON record per host session: status, a
// bounded transcript and the last summary. Records live in a per-user
// directory that external viewers may tail, so every write is an atomic
// rename and read-modify-write cycles hold an advisory lock.
package session

import "time"

// Status is the pipeline state of a session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusWorking     Status = "working"
	StatusSummarizing Status = "summarizing"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusSummarizing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one message in the bounded transcript.
type Entry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// Summary is the structured result of one summarization. Raw is only set
// when the summarizer output could not be split into the two fields.
type Summary struct {
	UserSummary  string `json:"user_summary"`
	AgentSummary string `json:"agent_summary"`
	Raw          string `json:"raw,omitempty"`
}

// Structured reports whether both summary fields were parsed.
func (s Summary) Structured() bool {
	return s.Raw == "" && (s.UserSummary != "" || s.AgentSummary != "")
}

// Record is the persisted state of one session.
type Record struct {
	ID          string    `json:"session_id"`
	Cwd         string    `json:"cwd"`
	Status      Status    `json:"status"`
	Transcript  []Entry   `json:"transcript"`
	LastSummary *Summary  `json:"last_summary,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	WorkerPID   int       `json:"worker_pid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Append adds an entry and evicts the oldest entries beyond maxTurns.
func (r *Record) Append(e Entry, maxTurns int) {
	r.Transcript = append(r.Transcript, e)
	if maxTurns > 0 && len(r.Transcript) > maxTurns {
		drop := len(r.Transcript) - maxTurns
		trimmed := make([]Entry, maxTurns)
		copy(trimmed, r.Transcript[drop:])
		r.Transcript = trimmed
	}
}

// LastEntry returns the newest transcript entry, if any.
func (r *Record) LastEntry() (Entry, bool) {
	if len(r.Transcript) == 0 {
		return Entry{}, false
	}
	return r.Transcript[len(r.Transcript)-1], true
}

// Exchange is a user message paired with the assistant reply that followed it.
type Exchange struct {
	User      string
	Assistant string
}

// Exchanges pairs each user entry with the next assistant entry. Unanswered
// user messages are skipped.
func (r *Record) Exchanges() []Exchange {
	var out []Exchange
	for i := 0; i < len(r.Transcript); i++ {
		if r.Transcript[i].Role != RoleUser {
			continue
		}
		if i+1 < len(r.Transcript) && r.Transcript[i+1].Role == RoleAssistant {
			out = append(out, Exchange{User: r.Transcript[i].Text, Assistant: r.Transcript[i+1].Text})
			i++
		}
	}
	return out
}
