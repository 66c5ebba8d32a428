package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/session"
	"github.com/asheshgoplani/agent-recap/internal/statedb"
)

const (
	colID      = 8
	colStatus  = 11
	colAge     = 9
	colCwd     = 28
	colSummary = 60
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyles = map[string]lipgloss.Style{
		string(session.StatusIdle):        lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		string(session.StatusWorking):     lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7")),
		string(session.StatusSummarizing): lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68")),
		string(session.StatusDone):        lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")),
		string(session.StatusFailed):      lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")).Bold(true),
	}
)

func renderStatus(status string) string {
	cell := pad(status, colStatus)
	if style, ok := statusStyles[status]; ok {
		return style.Render(cell)
	}
	return cell
}

// recordSummary is the one-line description shown for a record.
func recordSummary(r *session.Record) string {
	switch {
	case r.Status == session.StatusFailed && r.LastError != "":
		return "error: " + r.LastError
	case r.LastSummary == nil:
		if last, ok := r.LastEntry(); ok {
			return "> " + last.Text
		}
		return ""
	case r.LastSummary.Raw != "":
		return r.LastSummary.Raw
	default:
		return r.LastSummary.AgentSummary
	}
}

func recordKey(r *session.Record) string {
	return strings.Join([]string{r.ID, r.Cwd, recordSummary(r)}, " ")
}

func handleStatus(cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agent-recap status [query] [--json]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "List session records, most recent first. The optional query fuzzy-matches")
		fmt.Fprintln(os.Stderr, "session id, working directory and summary.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}

	store, err := newStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	records, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list sessions: %v\n", err)
		return 1
	}
	records = fuzzyFilter(records, strings.Join(fs.Args(), " "), recordKey)

	if *jsonOutput {
		return writeJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return 0
	}
	printRecords(out, records, time.Now())
	return 0
}

func printRecords(out io.Writer, records []*session.Record, now time.Time) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s %s %s %s %s",
		pad("SESSION", colID), pad("STATUS", colStatus), pad("UPDATED", colAge), pad("CWD", colCwd), "SUMMARY")))
	for _, r := range records {
		fmt.Fprintf(out, "%s %s %s %s %s\n",
			pad(shortID(r.ID), colID),
			renderStatus(string(r.Status)),
			dimStyle.Render(pad(formatAge(now, r.UpdatedAt), colAge)),
			pad(truncate(r.Cwd, colCwd), colCwd),
			truncate(recordSummary(r), colSummary))
	}
	fmt.Fprintf(out, "\nTotal: %d sessions\n", len(records))
}

func handleHistory(cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("n", 20, "Maximum runs to show")
	sessionID := fs.String("session", "", "Only runs for this session id")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agent-recap history [query] [-n N] [--session ID] [--json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}

	path, err := config.GetHistoryDBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(out, "No history yet.")
		return 0
	}
	db, err := statedb.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	query := strings.Join(fs.Args(), " ")
	fetch := *limit
	if query != "" {
		fetch = 0
	}
	runs, err := db.ListRuns(*sessionID, fetch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	runs = fuzzyFilter(runs, query, runKey)
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}

	if *jsonOutput {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return 0
	}
	printRuns(out, runs, time.Now())
	return 0
}

func runSummary(r *statedb.RunRow) string {
	switch {
	case r.Status == statedb.RunFailed:
		return "error: " + r.Error
	case r.Raw != "":
		return r.Raw
	default:
		return r.UserSummary + " / " + r.AgentSummary
	}
}

func runKey(r *statedb.RunRow) string {
	return strings.Join([]string{r.SessionID, r.Cwd, runSummary(r)}, " ")
}

func printRuns(out io.Writer, runs []*statedb.RunRow, now time.Time) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s %s %s %s %s",
		pad("FINISHED", colAge), pad("STATUS", colStatus), pad("TOOK", 7), pad("SESSION", colID), "SUMMARY")))
	for _, r := range runs {
		took := (time.Duration(r.DurationMS) * time.Millisecond).Round(100 * time.Millisecond).String()
		fmt.Fprintf(out, "%s %s %s %s %s\n",
			dimStyle.Render(pad(formatAge(now, r.FinishedAt), colAge)),
			renderStatus(r.Status),
			pad(took, 7),
			pad(shortID(r.SessionID), colID),
			truncate(runSummary(r), colSummary))
	}
}

func writeJSON(out io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON output: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, string(data))
	return 0
}
