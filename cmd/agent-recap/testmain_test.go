package main

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// TestMain points every command at a throwaway base directory so tests never
// read or write the real ~/.agent-recap, and disables colors so rendered
// output can be compared as plain text.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "agent-recap-cmd-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv("AGENT_RECAP_HOME", dir)
	lipgloss.SetColorProfile(termenv.Ascii)

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}
