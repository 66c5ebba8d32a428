// Package guard implements the recursion guard for the summary pipeline.
//
// The summarizer is itself a coding-assistant CLI, and its own hooks would
// call back into agent-recap. The worker therefore hands the summarizer an
// environment carrying EnvKey; every hook entry point checks for it first
// and does nothing when it is present. The flag travels as an explicit
// environment slice passed to exec.Cmd, so the interactive session's own
// environment never carries it.
package guard

import "strings"

// EnvKey marks processes spawned by the summary worker.
const EnvKey = "AGENT_RECAP_CHILD"

// Active reports whether env (KEY=VALUE pairs, as from os.Environ) carries
// the guard with a non-empty value.
func Active(env []string) bool {
	prefix := EnvKey + "="
	active := false
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			// Later entries win, matching exec's duplicate handling.
			active = strings.TrimSpace(kv[len(prefix):]) != ""
		}
	}
	return active
}

// Mark returns a copy of env with the guard set. Any existing value is replaced.
func Mark(env []string) []string {
	prefix := EnvKey + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+"1")
}
