package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/agent-recap/internal/config"
	"github.com/asheshgoplani/agent-recap/internal/logging"
	"github.com/asheshgoplani/agent-recap/internal/platform"
)

// Version is set at build time via -ldflags.
var Version = "0.3.0"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 0
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("agent-recap v%s (%s, %s runner)\n", Version, platform.Detect(), platform.RunnerName())
		return 0
	case "help", "--help", "-h":
		printHelp()
		return 0
	}

	cfg, cfgErr := config.Load()
	initLogging(cfg)
	defer logging.Shutdown()
	if cfgErr != nil {
		cliLog.Warn("config_load_failed", slog.String("error", cfgErr.Error()))
	}

	switch args[0] {
	case "prompt":
		handleHookCommand(cfg, hookTurnStart)
		return 0
	case "stop":
		handleHookCommand(cfg, hookTurnEnd)
		return 0
	case "hook":
		handleHookCommand(cfg, "")
		return 0
	case "worker":
		handleWorker(cfg, args[1:])
		return 0
	}

	initColorProfile()
	switch args[0] {
	case "status", "ls":
		return handleStatus(cfg, args[1:], os.Stdout)
	case "history":
		return handleHistory(cfg, args[1:], os.Stdout)
	case "watch":
		return handleWatch(cfg, args[1:], os.Stdout)
	case "prune":
		return handlePrune(cfg, args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		return 1
	}
}

// initLogging writes to <base>/recap.log. Hook commands share stdio with the
// host tool, so logs only ever go to the file.
func initLogging(cfg *config.Config) {
	logCfg := logging.Config{
		Level:      cfg.Logs.Level,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   true,
	}
	if base, err := config.GetBaseDir(); err == nil {
		if err := os.MkdirAll(base, 0o700); err == nil {
			logCfg.LogDir = base
		}
	}
	if os.Getenv("AGENT_RECAP_DEBUG") != "" {
		logCfg.Level = "debug"
	}
	logging.Init(logCfg)
}

// initColorProfile configures the lipgloss color profile for status output.
// AGENT_RECAP_COLOR overrides detection: truecolor, 256, 16, none.
func initColorProfile() {
	switch strings.ToLower(os.Getenv("AGENT_RECAP_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		if os.Getenv("NO_COLOR") != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		// Otherwise lipgloss detects from stdout.
	}
}

func printHelp() {
	fmt.Printf("agent-recap v%s\n", Version)
	fmt.Println("Turn-by-turn summaries for coding assistant sessions")
	fmt.Println()
	fmt.Println("Usage: agent-recap <command> [options]")
	fmt.Println()
	fmt.Println("Hook commands (read the hook payload on stdin, always exit 0):")
	fmt.Println("  prompt           Turn start (UserPromptSubmit)")
	fmt.Println("  stop             Turn end (Stop): summarize in the background")
	fmt.Println("  hook             Dispatch on hook_event_name")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status [query]   List sessions, fuzzy-filtered by query")
	fmt.Println("  history [query]  Show past summarizer runs")
	fmt.Println("  watch            Print session changes as they happen")
	fmt.Println("  prune            Remove old session records and runs")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Hook setup (~/.claude/settings.json):")
	fmt.Println(`  "UserPromptSubmit": [{"hooks": [{"type": "command", "command": "agent-recap prompt"}]}]`)
	fmt.Println(`  "Stop":             [{"hooks": [{"type": "command", "command": "agent-recap stop"}]}]`)
	fmt.Println()
	fmt.Printf("State lives in ~/.agent-recap (override with %s).\n", config.HomeEnv)
}
