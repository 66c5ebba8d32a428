package recap

import (
	"fmt"
	"os"
	"os/exec"
)

// Task is everything a worker needs to summarize one turn.
type Task struct {
	SessionID      string
	Cwd            string
	TranscriptPath string
}

// Spawner starts a worker for a task without waiting for it and returns the
// worker's pid.
type Spawner interface {
	Spawn(task Task) (int, error)
}

// ProcessSpawner re-executes the agent-recap binary as "worker", detached
// from the hook: new session (or process group on Windows), null stdio, and
// the handle released so nothing waits on it.
type ProcessSpawner struct {
	// Executable is the agent-recap binary, usually os.Executable().
	Executable string
	// Env is the worker environment. Nil inherits the hook's.
	Env []string
}

// WorkerArgs is the command line a worker is started with.
func WorkerArgs(task Task) []string {
	return []string{
		"worker",
		"--session", task.SessionID,
		"--cwd", task.Cwd,
		"--transcript", task.TranscriptPath,
	}
}

func (p *ProcessSpawner) Spawn(task Task) (int, error) {
	if p.Executable == "" {
		return 0, fmt.Errorf("no executable to spawn")
	}
	cmd := exec.Command(p.Executable, WorkerArgs(task)...)
	cmd.Env = p.Env
	// Nil stdio is the null device; the host tool is waiting on our pipes.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if info, err := os.Stat(task.Cwd); err == nil && info.IsDir() {
		cmd.Dir = task.Cwd
	}
	cmd.SysProcAttr = detachAttrs()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
