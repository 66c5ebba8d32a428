package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLastAssistantText(t *testing.T) {
	path := writeJSONL(t,
		`{"type":"user","message":{"role":"user","content":"Add a dark mode toggle"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Looking at the theme code."}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Implemented the switcher."},{"type":"tool_use","name":"Bash"},{"type":"text","text":"Tests pass."}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Read"}]}}`,
	)

	got, err := LastAssistantText(path)
	require.NoError(t, err)
	assert.Equal(t, "Implemented the switcher.\nTests pass.", got)
}

func TestLastAssistantText_SkipsMalformedLines(t *testing.T) {
	path := writeJSONL(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"first"}]}}`,
		`{not json`,
		``,
		`{"type":"summary","summary":"ignored"}`,
	)
	got, err := LastAssistantText(path)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestLastAssistantText_StringContent(t *testing.T) {
	path := writeJSONL(t, `{"type":"assistant","message":{"content":"plain reply"}}`)
	got, err := LastAssistantText(path)
	require.NoError(t, err)
	assert.Equal(t, "plain reply", got)
}

func TestLastAssistantText_MissingFile(t *testing.T) {
	got, err := LastAssistantText(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = LastAssistantText("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLastAssistantText_LargeLine(t *testing.T) {
	big := strings.Repeat("x", 2*1024*1024)
	path := writeJSONL(t,
		`{"type":"user","message":{"content":[{"type":"tool_result","content":"`+big+`"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"after big"}]}}`,
	)
	got, err := LastAssistantText(path)
	require.NoError(t, err)
	assert.Equal(t, "after big", got)
}
