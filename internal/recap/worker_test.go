package recap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/guard"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/ptyrun"
	"github.com/asheshgoplani/agent-recap/internal/session"
	"github.com/asheshgoplani/agent-recap/internal/statedb"
)

type fakeHistory struct {
	mu   sync.Mutex
	runs []*statedb.RunRow
}

func (f *fakeHistory) RecordRun(run *statedb.RunRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

// scriptedRunner answers every request with fixed output and error, and
// remembers the last request.
type scriptedRunner struct {
	output []byte
	err    error
	panic  string
	last   ptyrun.Request
}

func (r *scriptedRunner) Run(_ context.Context, req ptyrun.Request) (*ptyrun.Result, error) {
	r.last = req
	if r.panic != "" {
		panic(r.panic)
	}
	return &ptyrun.Result{Output: r.output}, r.err
}

type workerFixture struct {
	worker  *Worker
	history *fakeHistory
	cwd     string
	jsonl   string
}

func newWorkerFixture(t *testing.T, runner ptyrun.Runner) *workerFixture {
	t.Helper()
	cwd := t.TempDir()
	hist := &fakeHistory{}
	jsonl := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(
		`{"type":"user","message":{"content":"Add a dark mode toggle to settings"}}`+"\n"+
			`{"type":"assistant","message":{"content":[{"type":"text","text":"Added ThemeSwitcher with a persisted preference."}]}}`+"\n"), 0o644))

	opts := OptionsFromConfig(config.Default())
	return &workerFixture{
		worker: &Worker{
			Store:   session.NewStore(filepath.Join(t.TempDir(), "sessions"), 10),
			Runner:  runner,
			History: hist,
			Options: opts,
			Env:     []string{"PATH=/usr/bin:/bin"},
		},
		history: hist,
		cwd:     cwd,
		jsonl:   jsonl,
	}
}

func (f *workerFixture) startTurn(t *testing.T, prompt string) {
	t.Helper()
	_, err := f.worker.Store.StartTurn("s1", f.cwd, prompt)
	require.NoError(t, err)
}

func (f *workerFixture) run(t *testing.T) error {
	t.Helper()
	return f.worker.Run(context.Background(), Task{SessionID: "s1", Cwd: f.cwd, TranscriptPath: f.jsonl})
}

func (f *workerFixture) artifact() string {
	return ArtifactPath(f.cwd, f.worker.Options.Artifact)
}

func TestWorker_StructuredSummary(t *testing.T) {
	runner := &scriptedRunner{output: []byte("\x1b[?25l\x1b[1m{\"user_summary\":\"Add dark mode toggle\",\"agent_summary\":\"Implemented theme switcher\"}\x1b[0m\r\n\x1b[?25h1;2c\r\n")}
	f := newWorkerFixture(t, runner)
	f.startTurn(t, "Add a dark mode toggle to settings")

	require.NoError(t, f.run(t))

	data, err := os.ReadFile(f.artifact())
	require.NoError(t, err)
	assert.Equal(t, `{"user_summary":"Add dark mode toggle","agent_summary":"Implemented theme switcher"}`, string(data))

	rec, err := f.worker.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusDone, rec.Status)
	require.NotNil(t, rec.LastSummary)
	assert.Equal(t, "Add dark mode toggle", rec.LastSummary.UserSummary)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, session.RoleAssistant, rec.Transcript[1].Role)
	assert.Equal(t, "Added ThemeSwitcher with a persisted preference.", rec.Transcript[1].Text)

	require.Len(t, f.history.runs, 1)
	assert.Equal(t, statedb.RunDone, f.history.runs[0].Status)
	assert.Equal(t, "Implemented theme switcher", f.history.runs[0].AgentSummary)

	// The summarizer runs under the guard, with the conversation in its prompt.
	assert.True(t, guard.Active(runner.last.Env))
	assert.False(t, guard.Active(f.worker.Env))
	assert.Contains(t, runner.last.Prompt, "USER: Add a dark mode toggle to settings\nAGENT: Added ThemeSwitcher")
	assert.Equal(t, f.cwd, runner.last.Dir)
}

func TestWorker_RawFallback(t *testing.T) {
	f := newWorkerFixture(t, &scriptedRunner{output: []byte("Sorry, I can't summarize that.\r\n")})
	f.startTurn(t, "hello")

	require.NoError(t, f.run(t))

	data, err := os.ReadFile(f.artifact())
	require.NoError(t, err)
	assert.Equal(t, `{"user_summary":"","agent_summary":"","raw":"Sorry, I can't summarize that."}`, string(data))
	rec, _ := f.worker.Store.Load("s1")
	assert.Equal(t, session.StatusDone, rec.Status)
}

func TestWorker_FailureKeepsArtifact(t *testing.T) {
	tests := []struct {
		name   string
		runner *scriptedRunner
		errIs  error
	}{
		{"timeout", &scriptedRunner{output: []byte("partial"), err: ptyrun.ErrTimeout}, ptyrun.ErrTimeout},
		{"non-zero exit", &scriptedRunner{err: &ptyrun.ExitError{Code: 2}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkerFixture(t, tt.runner)
			f.startTurn(t, "hello")
			require.NoError(t, os.MkdirAll(filepath.Dir(f.artifact()), 0o755))
			require.NoError(t, os.WriteFile(f.artifact(), []byte("previous"), 0o644))

			err := f.run(t)
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}

			data, rerr := os.ReadFile(f.artifact())
			require.NoError(t, rerr)
			assert.Equal(t, "previous", string(data))

			rec, lerr := f.worker.Store.Load("s1")
			require.NoError(t, lerr)
			assert.Equal(t, session.StatusFailed, rec.Status)
			assert.Equal(t, err.Error(), rec.LastError)
			assert.Nil(t, rec.LastSummary)

			require.Len(t, f.history.runs, 1)
			assert.Equal(t, statedb.RunFailed, f.history.runs[0].Status)
		})
	}
}

func TestWorker_EmptyOutputIsAnEmptySummary(t *testing.T) {
	f := newWorkerFixture(t, &scriptedRunner{output: []byte("\x1b[0m\x1b[?25h\r\n")})
	f.startTurn(t, "hello")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.artifact()), 0o755))
	require.NoError(t, os.WriteFile(f.artifact(), []byte("previous"), 0o644))

	require.NoError(t, f.run(t))

	rec, err := f.worker.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusDone, rec.Status)
	assert.Empty(t, rec.LastError)
	require.NotNil(t, rec.LastSummary)
	assert.Equal(t, session.Summary{}, *rec.LastSummary)

	data, err := os.ReadFile(f.artifact())
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	require.Len(t, f.history.runs, 1)
	assert.Equal(t, statedb.RunDone, f.history.runs[0].Status)
}

func TestWorker_RecordFailureIsReported(t *testing.T) {
	runner := &scriptedRunner{output: []byte(`{"user_summary":"a","agent_summary":"b"}`)}
	f := newWorkerFixture(t, runner)
	// A directory where the record file belongs makes every save fail.
	require.NoError(t, os.MkdirAll(filepath.Join(f.worker.Store.Path("s1"), "blocker"), 0o755))

	err := f.run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record reply")
	assert.Empty(t, runner.last.Command)

	require.Len(t, f.history.runs, 1)
	assert.Equal(t, statedb.RunFailed, f.history.runs[0].Status)
	assert.Contains(t, f.history.runs[0].Error, "record reply")
}

func TestWorker_NothingToSummarize(t *testing.T) {
	runner := &scriptedRunner{output: []byte("should not run")}
	f := newWorkerFixture(t, runner)
	f.jsonl = filepath.Join(t.TempDir(), "missing.jsonl")
	f.startTurn(t, "hello")

	require.NoError(t, f.run(t))

	rec, err := f.worker.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusIdle, rec.Status)
	assert.Empty(t, runner.last.Command)
	assert.NoFileExists(t, f.artifact())
	assert.Empty(t, f.history.runs)
}

func TestWorker_GuardedWorkerDoesNothing(t *testing.T) {
	runner := &scriptedRunner{output: []byte(`{"user_summary":"a","agent_summary":"b"}`)}
	f := newWorkerFixture(t, runner)
	f.worker.Env = guard.Mark(f.worker.Env)

	require.NoError(t, f.run(t))
	_, err := f.worker.Store.Load("s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, runner.last.Command)
}

func TestWorker_PanicIsContained(t *testing.T) {
	logDir := t.TempDir()
	logging.Init(logging.Config{LogDir: logDir, Level: "debug"})
	t.Cleanup(logging.Shutdown)

	f := newWorkerFixture(t, &scriptedRunner{panic: "boom"})
	f.worker.CrashLog = filepath.Join(logDir, "crash.log")
	f.startTurn(t, "hello")

	err := f.run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	rec, lerr := f.worker.Store.Load("s1")
	require.NoError(t, lerr)
	assert.Equal(t, session.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "boom")

	crash, rerr := os.ReadFile(f.worker.CrashLog)
	require.NoError(t, rerr)
	assert.True(t, strings.Contains(string(crash), "worker_panic"))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Summarizer.TimeoutSeconds = 10
	cfg.Summarizer.PromptMode = config.PromptModeStdin

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, config.MinTimeout, opts.Timeout, "timeout is clamped")
	assert.Equal(t, ptyrun.PromptStdin, opts.PromptMode)
	assert.Equal(t, "claude", opts.Command)
	assert.Equal(t, 6000, opts.MaxConversationChars)
	assert.Equal(t, ArtifactOptions{Dir: ".claude", Format: config.FormatJSON}, opts.Artifact)
}
