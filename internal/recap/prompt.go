package recap

import (
	"strings"
	"unicode/utf8"

	"github.com/asheshgoplani/agent-recap/internal/session"
)

const (
	// projectExcerptChars caps the project context in the prompt.
	projectExcerptChars = 300
	// contextPartChars caps each context part before the excerpt is cut.
	contextPartChars = 500
)

// ConversationText renders complete exchanges as USER/AGENT pairs separated
// by blank lines, cut to maxChars runes with a trailing "..." when longer.
func ConversationText(exchanges []session.Exchange, maxChars int) string {
	parts := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		if ex.User == "" || ex.Assistant == "" {
			continue
		}
		parts = append(parts, "USER: "+ex.User+"\nAGENT: "+ex.Assistant)
	}
	return truncateRunes(strings.Join(parts, "\n\n"), maxChars, "...")
}

// projectExcerpt picks the current task (or the start of the plan) and the
// start of CLAUDE.md.
func projectExcerpt(pc ProjectContext) string {
	var parts []string
	switch {
	case pc.CurrentTask != "":
		parts = append(parts, "CURRENT TASK:\n"+pc.CurrentTask)
	case pc.PlanMD != "":
		parts = append(parts, "PROJECT PLAN:\n"+truncateRunes(pc.PlanMD, contextPartChars, ""))
	}
	if pc.ClaudeMD != "" {
		parts = append(parts, "PROJECT INFO:\n"+truncateRunes(pc.ClaudeMD, contextPartChars, ""))
	}
	return truncateRunes(strings.Join(parts, "\n\n"), projectExcerptChars, "")
}

// BuildPrompt composes the summarizer prompt.
func BuildPrompt(conversation string, pc ProjectContext) string {
	var b strings.Builder
	b.WriteString("Summarize this coding session.\n")
	if excerpt := projectExcerpt(pc); excerpt != "" {
		b.WriteString("\nPROJECT: ")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	b.WriteString("\nCONVERSATION:\n")
	b.WriteString(conversation)
	b.WriteString("\n\n")
	b.WriteString(`Respond with ONLY a JSON object, no other text:
{"user_summary": "<one sentence: what the user wanted across the session>", "agent_summary": "<one sentence: what was accomplished>"}

If you cannot produce JSON, respond with EXACTLY two lines:
USER asked [one sentence - what user wanted across the session]
AGENT [one sentence - what was accomplished]`)
	return b.String()
}

// truncateRunes cuts s to at most n runes, appending suffix when cut.
// n <= 0 disables the limit.
func truncateRunes(s string, n int, suffix string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + suffix
		}
		i++
	}
	return s
}
