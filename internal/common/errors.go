// Package common defines shared constants and sentinel errors used across
// client and server layers of GophJournal. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrCorruptedRecord marks stored data that can no longer be decoded.
	ErrCorruptedRecord = errors.New("corrupted stored record")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Vault errors.
	ErrInvalidInput         = errors.New("invalid input")
	ErrWrongPassphrase      = errors.New("wrong passphrase")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCorruptedEntry       = errors.New("corrupted entry")
	ErrVaultLocked          = errors.New("vault locked")
	ErrInvalidBundle        = errors.New("invalid bundle")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrNoBundle             = errors.New("vault not created")
	ErrBundleExists         = errors.New("vault already created")
	ErrVaultNotLoaded       = errors.New("vault not loaded")

	// Transport errors.
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrRemoteUnavailable = errors.New("remote unavailable")
)
