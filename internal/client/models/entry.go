// Package models defines the client-side journal types: the cached
// ciphertext rows, their wire representation and decrypted views.
package models

import (
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
)

// LocalEntry is the offline-first cached copy of one journal day.
// Content is ciphertext only.
type LocalEntry struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"`
	ContentCipher string    `json:"content_cipher"`
	IV            string    `json:"iv"`
	Version       int       `json:"version"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e LocalEntry) Ciphertext() *cryptox.CiphertextEntry {
	return &cryptox.CiphertextEntry{CipherB64: e.ContentCipher, IVB64: e.IV, Version: e.Version}
}

// RemoteEntry is a journal row as exchanged with the server.
type RemoteEntry struct {
	Date      string    `json:"date"`
	CipherB64 string    `json:"cipher_b64"`
	IVB64     string    `json:"iv_b64"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e RemoteEntry) Ciphertext() *cryptox.CiphertextEntry {
	return &cryptox.CiphertextEntry{CipherB64: e.CipherB64, IVB64: e.IVB64, Version: e.Version}
}

// ToLocal converts a server row into a cache row with the given id.
func (e RemoteEntry) ToLocal(id string) LocalEntry {
	return LocalEntry{
		ID:            id,
		Date:          e.Date,
		ContentCipher: e.CipherB64,
		IV:            e.IVB64,
		Version:       e.Version,
		UpdatedAt:     e.UpdatedAt,
	}
}

// ToRemote converts a cache row into its wire form.
func (e LocalEntry) ToRemote() RemoteEntry {
	return RemoteEntry{
		Date:      e.Date,
		CipherB64: e.ContentCipher,
		IVB64:     e.IV,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
	}
}

// Entry is a decrypted journal day.
type Entry struct {
	Date      string
	Content   string
	UpdatedAt time.Time
}

// ViewOverview is one line of the list view.
type ViewOverview struct {
	Date      string
	Preview   string
	UpdatedAt time.Time
	Pending   bool
}
