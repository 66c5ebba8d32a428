package recap

import (
	"encoding/json"
	"strings"

	"github.com/asheshgoplani/agent-recap/internal/session"
)

// ParseSummary turns cleaned summarizer output into a Summary. A JSON object
// with user_summary/agent_summary wins; otherwise a "USER asked ..." line
// paired with an "AGENT ..." line; otherwise the whole text is kept as Raw.
// Empty input yields the zero Summary.
func ParseSummary(text string) session.Summary {
	text = strings.TrimSpace(text)
	if text == "" {
		return session.Summary{}
	}
	if sum, ok := parseJSONSummary(text); ok {
		return sum
	}
	if sum, ok := parseLineSummary(text); ok {
		return sum
	}
	return session.Summary{Raw: text}
}

// parseJSONSummary looks for the outermost {...} so code fences or a short
// preamble around the object don't matter.
func parseJSONSummary(text string) (session.Summary, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return session.Summary{}, false
	}
	var v struct {
		UserSummary  *string `json:"user_summary"`
		AgentSummary *string `json:"agent_summary"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return session.Summary{}, false
	}
	if v.UserSummary == nil || v.AgentSummary == nil {
		return session.Summary{}, false
	}
	sum := session.Summary{
		UserSummary:  oneLine(*v.UserSummary),
		AgentSummary: oneLine(*v.AgentSummary),
	}
	return sum, sum.UserSummary != "" || sum.AgentSummary != ""
}

func parseLineSummary(text string) (session.Summary, bool) {
	var sum session.Summary
	var haveUser, haveAgent bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case !haveUser && hasPrefixFold(line, "USER"):
			rest := line[len("USER"):]
			if hasPrefixFold(strings.TrimSpace(rest), "asked") {
				rest = strings.TrimSpace(rest)[len("asked"):]
			}
			sum.UserSummary = trimLead(rest)
			haveUser = sum.UserSummary != ""
		case haveUser && !haveAgent && hasPrefixFold(line, "AGENT"):
			sum.AgentSummary = trimLead(line[len("AGENT"):])
			haveAgent = sum.AgentSummary != ""
		}
	}
	return sum, haveUser && haveAgent
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// trimLead drops the separator left after a USER/AGENT label.
func trimLead(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " :-\t"))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
