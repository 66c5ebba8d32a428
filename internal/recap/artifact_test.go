package recap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", ".claude", "SUMMARY.json"),
		ArtifactPath("/work", ArtifactOptions{Dir: ".claude", Format: config.FormatJSON}))
	assert.Equal(t, filepath.Join("/work", ".claude", "SUMMARY.txt"),
		ArtifactPath("/work", ArtifactOptions{Dir: ".claude", Format: config.FormatText}))
	assert.Equal(t, filepath.Join("/var/recap", "SUMMARY.json"),
		ArtifactPath("/work", ArtifactOptions{Dir: "/var/recap"}))
}

func TestRenderArtifact_JSONIsExactlyTwoFields(t *testing.T) {
	data, err := RenderArtifact(session.Summary{UserSummary: "Add dark mode toggle", AgentSummary: "Implemented theme switcher"}, config.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, `{"user_summary":"Add dark mode toggle","agent_summary":"Implemented theme switcher"}`, string(data))
}

func TestRenderArtifact_RawAndHTML(t *testing.T) {
	data, err := RenderArtifact(session.Summary{Raw: "a <b> & c"}, config.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, `{"user_summary":"","agent_summary":"","raw":"a <b> & c"}`, string(data))
}

func TestRenderArtifact_Text(t *testing.T) {
	data, err := RenderArtifact(session.Summary{UserSummary: "fix tests", AgentSummary: "fixed two"}, config.FormatText)
	require.NoError(t, err)
	assert.Equal(t, "USER asked: fix tests\nAGENT: fixed two\n", string(data))

	data, err = RenderArtifact(session.Summary{Raw: "free text"}, config.FormatText)
	require.NoError(t, err)
	assert.Equal(t, "free text\n", string(data))
}

func TestWriteArtifact(t *testing.T) {
	cwd := t.TempDir()
	opts := ArtifactOptions{Dir: ".claude", Format: config.FormatJSON}

	path, err := WriteArtifact(cwd, opts, session.Summary{UserSummary: "u1", AgentSummary: "a1"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, ".claude", "SUMMARY.json"), path)

	_, err = WriteArtifact(cwd, opts, session.Summary{UserSummary: "u2", AgentSummary: "a2"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"user_summary":"u2","agent_summary":"a2"}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteArtifact_NoCwd(t *testing.T) {
	_, err := WriteArtifact("", ArtifactOptions{Dir: ".claude"}, session.Summary{Raw: "x"})
	assert.Error(t, err)
}
