// Package cryptox implements the vault primitives: Argon2id key derivation,
// AES-256-GCM encryption of content into base64 records, and wrapping of the
// data key under a passphrase-derived key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// NonceSize is the GCM nonce length (96 bits).
const NonceSize = 12

// CiphertextVersion tags content records produced by Encrypt.
const CiphertextVersion = 1

// CiphertextEntry is an encrypted record as persisted to any store.
type CiphertextEntry struct {
	CipherB64 string `json:"cipher_b64"`
	IVB64     string `json:"iv_b64"`
	Version   int    `json:"version"`
}

// Validate rejects partial records before anything tries to decrypt them.
func (e CiphertextEntry) Validate() error {
	if e.CipherB64 == "" || e.IVB64 == "" {
		return fmt.Errorf("%w: missing cipher_b64 or iv_b64", common.ErrInvalidCiphertext)
	}
	if e.Version != CiphertextVersion {
		return fmt.Errorf("%w: unsupported version %d", common.ErrInvalidCiphertext, e.Version)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidInput, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal encrypts plaintext with a fresh random nonce.
func seal(key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// open authenticates and decrypts. Any integrity failure is reported as
// common.ErrAuthenticationFailed, never as garbage plaintext.
func open(key, ciphertext, nonce, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrInvalidCiphertext, NonceSize, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, common.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Encrypt seals plaintext under key into a CiphertextEntry.
func Encrypt(key, plaintext []byte) (*CiphertextEntry, error) {
	ct, nonce, err := seal(key, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return &CiphertextEntry{
		CipherB64: base64.StdEncoding.EncodeToString(ct),
		IVB64:     base64.StdEncoding.EncodeToString(nonce),
		Version:   CiphertextVersion,
	}, nil
}

// Decrypt opens a CiphertextEntry produced by Encrypt.
func Decrypt(key []byte, entry *CiphertextEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", common.ErrInvalidCiphertext)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	ct, err := decodeB64("cipher_b64", entry.CipherB64, common.ErrInvalidCiphertext)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeB64("iv_b64", entry.IVB64, common.ErrInvalidCiphertext)
	if err != nil {
		return nil, err
	}
	return open(key, ct, nonce, nil)
}

func decodeB64(field, value string, kind error) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", kind, field, err)
	}
	return b, nil
}
