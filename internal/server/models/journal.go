package models

import "time"

// JournalRow is one encrypted journal day of one user.
type JournalRow struct {
	UserID    string    `json:"-"`
	Date      string    `json:"date"`
	CipherB64 string    `json:"cipher_b64"`
	IVB64     string    `json:"iv_b64"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Limits are the server-side constraints published to clients.
type Limits struct {
	MaxEntryBytes     int `json:"max_entry_bytes"`
	MaxSummaryHistory int `json:"max_summary_history"`
}
