package recap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/fsutil"
	"github.com/asheshgoplani/agent-recap/internal/session"
)

// Artifact file names by format.
const (
	ArtifactJSONName = "SUMMARY.json"
	ArtifactTextName = "SUMMARY.txt"
)

// ArtifactOptions says where the artifact goes and how it is encoded.
type ArtifactOptions struct {
	// Dir is joined to the session's working directory unless absolute.
	Dir    string
	Format string
}

// ArtifactPath returns the artifact file for a working directory.
func ArtifactPath(cwd string, opts ArtifactOptions) string {
	dir := opts.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cwd, dir)
	}
	if opts.Format == config.FormatText {
		return filepath.Join(dir, ArtifactTextName)
	}
	return filepath.Join(dir, ArtifactJSONName)
}

// RenderArtifact encodes a summary. JSON output is exactly the two summary
// fields, plus raw only for unparsed output.
func RenderArtifact(sum session.Summary, format string) ([]byte, error) {
	if format == config.FormatText {
		if sum.Raw != "" {
			return []byte(sum.Raw + "\n"), nil
		}
		return []byte("USER asked: " + sum.UserSummary + "\nAGENT: " + sum.AgentSummary + "\n"), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sum); err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteArtifact atomically replaces the artifact under cwd and returns its path.
func WriteArtifact(cwd string, opts ArtifactOptions, sum session.Summary) (string, error) {
	if cwd == "" && !filepath.IsAbs(opts.Dir) {
		return "", fmt.Errorf("no working directory for artifact")
	}
	data, err := RenderArtifact(sum, opts.Format)
	if err != nil {
		return "", err
	}
	path := ArtifactPath(cwd, opts)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
