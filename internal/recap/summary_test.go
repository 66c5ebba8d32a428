package recap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asheshgoplani/agent-recap/internal/session"
)

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want session.Summary
	}{
		{
			name: "json",
			in:   `{"user_summary":"Add dark mode toggle","agent_summary":"Implemented theme switcher"}`,
			want: session.Summary{UserSummary: "Add dark mode toggle", AgentSummary: "Implemented theme switcher"},
		},
		{
			name: "json in code fence",
			in:   "```json\n{\"user_summary\": \"Fix login\",\n \"agent_summary\": \"Patched session cookie\"}\n```",
			want: session.Summary{UserSummary: "Fix login", AgentSummary: "Patched session cookie"},
		},
		{
			name: "json with wrapped values",
			in:   "{\"user_summary\": \"Add\\n  tests\", \"agent_summary\": \"Wrote  six tests\"}",
			want: session.Summary{UserSummary: "Add tests", AgentSummary: "Wrote six tests"},
		},
		{
			name: "two lines",
			in:   "USER asked for a dark mode toggle\nAGENT implemented a theme switcher",
			want: session.Summary{UserSummary: "for a dark mode toggle", AgentSummary: "implemented a theme switcher"},
		},
		{
			name: "two lines with colons and preamble",
			in:   "Here is the summary:\nUSER asked: refactor the parser\nAGENT: split it into three files\n",
			want: session.Summary{UserSummary: "refactor the parser", AgentSummary: "split it into three files"},
		},
		{
			name: "raw fallback",
			in:   "  I could not summarize this session.  ",
			want: session.Summary{Raw: "I could not summarize this session."},
		},
		{
			name: "json missing a field is raw",
			in:   `{"user_summary":"only one"}`,
			want: session.Summary{Raw: `{"user_summary":"only one"}`},
		},
		{
			name: "agent line before user line is raw",
			in:   "AGENT did things\nUSER asked things",
			want: session.Summary{Raw: "AGENT did things\nUSER asked things"},
		},
		{
			name: "empty",
			in:   " \n ",
			want: session.Summary{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSummary(tt.in))
		})
	}
}
