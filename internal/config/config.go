// Package config loads agent-recap's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file inside the base directory.
const FileName = "config.toml"

// HomeEnv overrides the base directory (~/.agent-recap).
const HomeEnv = "AGENT_RECAP_HOME"

// MinTimeout is the lowest summarizer timeout accepted from config. Cold start
// of a CLI summarizer alone takes tens of seconds.
const MinTimeout = 60 * time.Second

// Prompt delivery modes for the summarizer.
const (
	PromptModeArg   = "arg"
	PromptModeStdin = "stdin"
)

// Artifact formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config represents the user configuration in TOML format.
type Config struct {
	Summarizer SummarizerSettings `toml:"summarizer"`
	Transcript TranscriptSettings `toml:"transcript"`
	Artifact   ArtifactSettings   `toml:"artifact"`
	History    HistorySettings    `toml:"history"`
	Logs       LogSettings        `toml:"logs"`
}

// SummarizerSettings configures the external summarizer command.
type SummarizerSettings struct {
	// Command is the executable, resolved through PATH.
	Command string `toml:"command"`

	// Args are passed before the prompt (in "arg" mode the prompt is appended last).
	Args []string `toml:"args"`

	// PromptMode is "arg" (default) or "stdin".
	PromptMode string `toml:"prompt_mode"`

	// TimeoutSeconds bounds one invocation (default 90, never below 60).
	TimeoutSeconds int `toml:"timeout_seconds"`

	// GraceSeconds is the wait between SIGTERM and SIGKILL (default 5).
	GraceSeconds int `toml:"grace_seconds"`
}

// TranscriptSettings bounds what is kept and sent.
type TranscriptSettings struct {
	// MaxTurns caps transcript entries per session (default 10).
	MaxTurns int `toml:"max_turns"`

	// MaxConversationChars truncates the conversation excerpt in the prompt (default 6000).
	MaxConversationChars int `toml:"max_conversation_chars"`
}

// ArtifactSettings controls where and how the summary artifact is written.
type ArtifactSettings struct {
	// Dir is relative to the session's working directory (default ".claude").
	Dir string `toml:"dir"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`
}

// HistorySettings controls the SQLite run history.
type HistorySettings struct {
	// Enabled defaults to true; set false to skip history.db entirely.
	Enabled *bool `toml:"enabled"`
}

// LogSettings controls the rotating log file.
type LogSettings struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Summarizer: SummarizerSettings{
			Command:        "claude",
			Args:           []string{"-p", "--model", "haiku", "--tools", "", "--no-session-persistence"},
			PromptMode:     PromptModeArg,
			TimeoutSeconds: 90,
			GraceSeconds:   5,
		},
		Transcript: TranscriptSettings{
			MaxTurns:             10,
			MaxConversationChars: 6000,
		},
		Artifact: ArtifactSettings{
			Dir:    ".claude",
			Format: FormatJSON,
		},
		Logs: LogSettings{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Timeout returns the summarizer timeout, never below MinTimeout.
func (s SummarizerSettings) Timeout() time.Duration {
	d := time.Duration(s.TimeoutSeconds) * time.Second
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// Grace returns the SIGTERM-to-SIGKILL wait.
func (s SummarizerSettings) Grace() time.Duration {
	if s.GraceSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.GraceSeconds) * time.Second
}

// GetEnabled reports whether run history is recorded (default true).
func (h HistorySettings) GetEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Summarizer.Command == "" {
		c.Summarizer.Command = def.Summarizer.Command
		if c.Summarizer.Args == nil {
			c.Summarizer.Args = def.Summarizer.Args
		}
	}
	if c.Summarizer.PromptMode != PromptModeStdin {
		c.Summarizer.PromptMode = PromptModeArg
	}
	if c.Summarizer.TimeoutSeconds <= 0 {
		c.Summarizer.TimeoutSeconds = def.Summarizer.TimeoutSeconds
	}
	if c.Summarizer.GraceSeconds <= 0 {
		c.Summarizer.GraceSeconds = def.Summarizer.GraceSeconds
	}
	if c.Transcript.MaxTurns <= 0 {
		c.Transcript.MaxTurns = def.Transcript.MaxTurns
	}
	if c.Transcript.MaxConversationChars <= 0 {
		c.Transcript.MaxConversationChars = def.Transcript.MaxConversationChars
	}
	if c.Artifact.Dir == "" {
		c.Artifact.Dir = def.Artifact.Dir
	}
	if c.Artifact.Format != FormatText {
		c.Artifact.Format = FormatJSON
	}
	if c.Logs.Level == "" {
		c.Logs.Level = def.Logs.Level
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = def.Logs.MaxSizeMB
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = def.Logs.MaxBackups
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = def.Logs.MaxAgeDays
	}
}

// GetBaseDir returns the per-user state directory.
func GetBaseDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agent-recap"), nil
}

// GetSessionsDir returns the directory holding one JSON record per session.
func GetSessionsDir() (string, error) {
	base, err := GetBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sessions"), nil
}

// GetHistoryDBPath returns the SQLite run history path.
func GetHistoryDBPath() (string, error) {
	base, err := GetBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "history.db"), nil
}

// Cache for config (loaded once per process)
var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// Load reads config.toml from the base directory, returning defaults when it
// does not exist. A parse error is returned alongside the defaults so hooks
// can log it and keep going.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()
	if configCache != nil {
		return configCache, nil
	}

	base, err := GetBaseDir()
	if err != nil {
		configCache = Default()
		return configCache, nil
	}

	cfg, err := LoadFile(filepath.Join(base, FileName))
	configCache = cfg
	return cfg, err
}

// LoadFile decodes a specific TOML file. Missing files yield defaults.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default(), fmt.Errorf("config.toml parse error: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ClearCache drops the cached config so the next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}
