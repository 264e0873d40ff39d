package main

import (
	"fmt"
	"io"

	"aionclock/store"
)

// dumpJournal prints the newest n lifecycle journal entries, newest first.
func dumpJournal(path string, n int, w io.Writer) error {
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	entries, err := db.ListJournal(n)
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-12s boot=%s", e.RecordedAt.Format("2006-01-02 15:04:05"), e.Kind, e.BootID)
		if e.FromState != "" || e.ToState != "" {
			line += fmt.Sprintf(" %s -> %s", e.FromState, e.ToState)
		}
		if e.Detail != "" {
			line += " " + e.Detail
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
