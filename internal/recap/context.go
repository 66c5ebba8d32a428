package recap

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	claudeMDChars    = 2000
	planMDChars      = 3000
	currentTaskChars = 1000
)

// currentSection matches a "## CURRENT" heading and its body up to the next
// level-two heading or horizontal rule.
var currentSection = regexp.MustCompile(`(?is)## CURRENT[:\s].*?(?:\n## |\n---|\z)`)

// ProjectContext is the slice of project documentation sent with the prompt.
type ProjectContext struct {
	ClaudeMD    string
	PlanMD      string
	CurrentTask string
}

// LoadProjectContext reads CLAUDE.md and PLAN.md from cwd concurrently.
// Missing or unreadable files leave their fields empty.
func LoadProjectContext(ctx context.Context, cwd string) ProjectContext {
	var pc ProjectContext
	if cwd == "" {
		return pc
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		pc.ClaudeMD = readPrefix(filepath.Join(cwd, "CLAUDE.md"), claudeMDChars)
		return nil
	})
	g.Go(func() error {
		// The CURRENT section may sit past the prefix, so read the whole file.
		full := readPrefix(filepath.Join(cwd, "PLAN.md"), -1)
		pc.PlanMD = truncateRunes(full, planMDChars, "")
		pc.CurrentTask = extractCurrent(full)
		return nil
	})
	_ = g.Wait()
	return pc
}

func extractCurrent(plan string) string {
	loc := currentSection.FindStringIndex(plan)
	if loc == nil {
		return ""
	}
	section := plan[loc[0]:loc[1]]
	// The terminator belongs to the next section.
	for _, term := range []string{"\n## ", "\n---"} {
		if strings.HasSuffix(section, term) {
			section = strings.TrimSuffix(section, term)
			break
		}
	}
	return truncateRunes(strings.TrimSpace(section), currentTaskChars, "")
}

// readPrefix returns up to n runes of the file at path (all of it when n < 0).
func readPrefix(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var r io.Reader = f
	if n >= 0 {
		// A rune is at most 4 bytes.
		r = io.LimitReader(f, int64(n)*4)
	}
	data, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	if n < 0 {
		return string(data)
	}
	return truncateRunes(string(data), n, "")
}
