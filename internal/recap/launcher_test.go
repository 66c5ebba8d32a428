package recap

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-recap/internal/guard"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

type fakeSpawner struct {
	mu    sync.Mutex
	tasks []Task
	pid   int
	err   error
}

func (f *fakeSpawner) Spawn(task Task) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return f.pid, f.err
}

func newTestLauncher(t *testing.T, maxTurns int) (*Launcher, *fakeSpawner) {
	t.Helper()
	sp := &fakeSpawner{pid: 4242}
	return &Launcher{
		Store:   session.NewStore(filepath.Join(t.TempDir(), "sessions"), maxTurns),
		Spawner: sp,
		Env:     []string{"PATH=/usr/bin"},
	}, sp
}

func TestOnTurnStart_RecordsPrompt(t *testing.T) {
	l, _ := newTestLauncher(t, 10)

	require.NoError(t, l.OnTurnStart(Event{SessionID: "s1", Cwd: "/work", Prompt: "add dark mode"}))

	rec, err := l.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusWorking, rec.Status)
	assert.Equal(t, "/work", rec.Cwd)
	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, session.RoleUser, rec.Transcript[0].Role)
	assert.Equal(t, "add dark mode", rec.Transcript[0].Text)
}

func TestOnTurnStart_Eviction(t *testing.T) {
	l, _ := newTestLauncher(t, 4)
	prompts := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for _, p := range prompts {
		require.NoError(t, l.OnTurnStart(Event{SessionID: "s1", Prompt: p}))
	}

	rec, err := l.Store.Load("s1")
	require.NoError(t, err)
	require.Len(t, rec.Transcript, 4)
	for i, e := range rec.Transcript {
		assert.Equal(t, prompts[3+i], e.Text)
	}
}

func TestOnTurnStart_EmptyPromptIgnored(t *testing.T) {
	l, _ := newTestLauncher(t, 10)
	require.NoError(t, l.OnTurnStart(Event{SessionID: "s1", Prompt: "  \n"}))
	_, err := l.Store.Load("s1")
	assert.True(t, errors.Is(err, session.ErrNotFound))
}

func TestOnTurnStart_MissingSession(t *testing.T) {
	l, _ := newTestLauncher(t, 10)
	assert.ErrorIs(t, l.OnTurnStart(Event{Prompt: "hi"}), ErrNoSession)
	assert.ErrorIs(t, l.OnTurnEnd(Event{}), ErrNoSession)
}

func TestOnTurnEnd_SpawnsWorker(t *testing.T) {
	l, sp := newTestLauncher(t, 10)
	require.NoError(t, l.OnTurnStart(Event{SessionID: "s1", Cwd: "/work", Prompt: "hi"}))

	require.NoError(t, l.OnTurnEnd(Event{SessionID: "s1", TranscriptPath: "/tmp/t.jsonl"}))

	require.Len(t, sp.tasks, 1)
	assert.Equal(t, Task{SessionID: "s1", Cwd: "/work", TranscriptPath: "/tmp/t.jsonl"}, sp.tasks[0])

	rec, err := l.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusSummarizing, rec.Status)
	assert.Equal(t, 4242, rec.WorkerPID)
}

func TestOnTurnEnd_SpawnFailureMarksFailed(t *testing.T) {
	l, sp := newTestLauncher(t, 10)
	sp.err = errors.New("fork: resource temporarily unavailable")

	err := l.OnTurnEnd(Event{SessionID: "s1", Cwd: "/work"})
	require.Error(t, err)

	rec, err := l.Store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "resource temporarily unavailable")
}

func TestGuard_HooksAreNoOpsInsideSummarizer(t *testing.T) {
	l, sp := newTestLauncher(t, 10)
	require.NoError(t, l.OnTurnStart(Event{SessionID: "s1", Cwd: "/work", Prompt: "real prompt"}))

	before, err := os.ReadFile(l.Store.Path("s1"))
	require.NoError(t, err)

	child := &Launcher{Store: l.Store, Spawner: sp, Env: guard.Mark([]string{"PATH=/usr/bin"})}
	require.NoError(t, child.OnTurnStart(Event{SessionID: "s1", Cwd: "/elsewhere", Prompt: "summarize this"}))
	require.NoError(t, child.OnTurnEnd(Event{SessionID: "s1"}))
	require.NoError(t, child.OnTurnStart(Event{SessionID: "s2", Prompt: "new session"}))

	after, err := os.ReadFile(l.Store.Path("s1"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "record must be byte-identical")
	assert.Empty(t, sp.tasks)
	_, err = l.Store.Load("s2")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestWorkerArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"worker", "--session", "s1", "--cwd", "/w", "--transcript", "/t.jsonl"},
		WorkerArgs(Task{SessionID: "s1", Cwd: "/w", TranscriptPath: "/t.jsonl"}))
}
