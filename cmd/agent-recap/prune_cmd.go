package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/asheshgoplani/agent-recap/internal/config"
)

const defaultRetention = 7 * 24 * time.Hour

// handlePrune is the explicit retention policy: the pipeline itself never
// deletes a session record.
func handlePrune(cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", defaultRetention, "Remove records and runs not updated within this long")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agent-recap prune [--older-than 168h]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *olderThan <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --older-than must be positive")
		return 1
	}
	cutoff := time.Now().Add(-*olderThan)

	store, err := newStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	removed, err := store.Prune(cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Removed %d session records.\n", len(removed))

	if path, err := config.GetHistoryDBPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if db := openHistory(cfg); db != nil {
				defer db.Close()
				n, err := db.PruneRuns(cutoff)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					return 1
				}
				fmt.Fprintf(out, "Removed %d history runs.\n", n)
			}
		}
	}
	return 0
}
