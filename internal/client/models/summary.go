package models

import "time"

// Summary is an encrypted summary covering the days From..To.
type Summary struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CipherB64 string    `json:"cipher_b64"`
	IVB64     string    `json:"iv_b64"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryView is a decrypted summary.
type SummaryView struct {
	ID        string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}
