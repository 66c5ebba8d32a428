// Package scrub turns raw pseudo-terminal output into plain text.
//
// Grammar handled by pass 1 (ECMA-48 / DEC VT parser from charmbracelet/x/ansi):
//
//	CSI   ESC [ params(0x30-0x3F)* intermediates(0x20-0x2F)* final(0x40-0x7E)
//	OSC   ESC ] ... (BEL | ESC \)
//	DCS   ESC P ... ESC \      (also SOS ESC X, PM ESC ^, APC ESC _)
//	ESC   ESC intermediates* final(0x30-0x7E)   e.g. ESC 7, ESC ( B, ESC =
//	C1    0x9B / 0x9D / 0x90 ... as the 8-bit forms of the above
//
// Sequences are recognised by shape rather than by a fixed list, so colors,
// cursor movement, title setting and device-attribute responses all go the
// same way. A sequence cut off by the end of input is dropped.
//
// Pass 2 drops trailing lines that look like terminal reports (for example
// the "1;2c" left behind by a device-attribute reply) rather than content.
package scrub

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// maxReportLine is the longest trailing line still treated as a terminal report.
const maxReportLine = 32

// reportLine matches parameter bytes, the residue of a CSI report whose
// introducer was lost: "1;2c", "[?62;c", "24;80R" or a bare "0". A final
// letter is only accepted after a ";" or "?" parameter run, so a short
// content line such as "5m" survives.
var reportLine = regexp.MustCompile(`^[\[\]?>=0-9;: ]*(?:[;?][0-9]*[A-Za-z~])?$`)

// Clean strips escape sequences and control characters from raw terminal
// output, then removes trailing terminal-report lines. It never fails;
// identical input always yields identical output.
func Clean(raw []byte) string {
	return StripTrailingReports(StripControls(raw))
}

// StripControls is pass 1: escape sequences are removed, CRLF becomes LF,
// a lone CR rewinds to the start of the line the way a terminal redraw
// would, and every other C0 control except tab and newline is dropped along
// with DEL. Invalid UTF-8 is replaced with U+FFFD.
func StripControls(raw []byte) string {
	s := ansi.Strip(sanitize(raw))
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}

	out := make([]byte, 0, len(s))
	lineStart := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\r':
			j := i
			for j < len(s) && s[j] == '\r' {
				j++
			}
			if j == len(s) || s[j] == '\n' {
				// CRLF from the pty's ONLCR translation, or a trailing CR.
				i = j - 1
				continue
			}
			out = out[:lineStart]
			i = j - 1
		case c == '\n':
			out = append(out, c)
			lineStart = len(out)
		case c == '\t':
			out = append(out, c)
		case c < 0x20 || c == 0x7f:
			continue
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// sanitize replaces invalid UTF-8 with U+FFFD but keeps lone 8-bit C1
// bytes, which the escape parser still has to see as introducers.
func sanitize(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw) + 8)
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		switch {
		case r == utf8.RuneError && size == 1 && raw[i] >= 0x80 && raw[i] <= 0x9f:
			b.WriteByte(raw[i])
		case r == utf8.RuneError && size == 1:
			b.WriteString("\uFFFD")
		default:
			b.Write(raw[i : i+size])
		}
		i += size
	}
	return b.String()
}

// StripTrailingReports is pass 2. Trailing lines that match the terminal
// report shape are removed together with any blank lines around them.
// Input without such lines is returned unchanged.
func StripTrailingReports(s string) string {
	lines := strings.Split(s, "\n")
	end := len(lines)
	dropped := false
scan:
	for end > 0 {
		line := strings.TrimSpace(lines[end-1])
		switch {
		case line == "":
		case isReportLine(line):
			dropped = true
		default:
			break scan
		}
		end--
	}
	if !dropped {
		return s
	}
	return strings.Join(lines[:end], "\n")
}

func isReportLine(line string) bool {
	if len(line) > maxReportLine || !strings.ContainsAny(line, "0123456789") {
		return false
	}
	return reportLine.MatchString(line)
}
