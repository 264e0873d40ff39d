package store

import (
	"time"
)

// Journal entry kinds.
const (
	JournalTransition   = "transition"
	JournalReboot       = "reboot"
	JournalRegistration = "registration"
)

// JournalEntry is one lifecycle record.
type JournalEntry struct {
	ID         int64     `json:"id"`
	BootID     string    `json:"boot_id"`
	Kind       string    `json:"kind"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	Detail     string    `json:"detail"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (db *DB) AppendJournal(e JournalEntry) (int64, error) {
	res, err := db.Exec(`INSERT INTO journal (boot_id, kind, from_state, to_state, detail) VALUES (?, ?, ?, ?, ?)`,
		e.BootID, e.Kind, e.FromState, e.ToState, e.Detail)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListJournal returns the newest entries first.
func (db *DB) ListJournal(limit int) ([]JournalEntry, error) {
	rows, err := db.Query(`SELECT id, boot_id, kind, from_state, to_state, detail, recorded_at FROM journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.BootID, &e.Kind, &e.FromState, &e.ToState, &e.Detail, &recordedAt); err != nil {
			return nil, err
		}
		e.RecordedAt = scanTime(recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
