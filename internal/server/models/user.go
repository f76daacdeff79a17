// Package models defines the server-side records persisted by the
// repositories. Journal and bundle payloads are ciphertext only.
package models

import "time"

// User is a registered account. Salt and Verifier come from the client; the
// server never sees the passphrase or anything derived from it besides the
// verifier.
type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
