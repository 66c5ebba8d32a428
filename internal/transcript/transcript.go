// Package transcript reads the host tool's JSONL conversation log.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// maxLine bounds a single JSONL entry. Tool results can be very large.
const maxLine = 16 * 1024 * 1024

type jsonlEntry struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LastAssistantText returns the text of the last assistant message in the
// transcript at path, with multiple text blocks joined by newlines. Tool-use
// only messages are skipped. A missing file or empty path yields "".
//
// When the scan stops early (for example on an oversized line) the text found
// so far is returned together with the error.
func LastAssistantText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, maxLine)

	var last string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry jsonlEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // Skip malformed lines
		}
		if entry.Type != "assistant" {
			continue
		}
		if text := textOf(entry.Message.Content); text != "" {
			last = text
		}
	}
	return last, scanner.Err()
}

// textOf extracts text from a message content field, which is either a
// plain string or a list of typed blocks.
func textOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var texts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				texts = append(texts, b.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
