package vault

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
)

// KeyHandle gives access to the data key without exposing it. The key is
// kept sealed in a memguard enclave and only opened into locked memory for
// the duration of one operation. After the vault is locked every method
// fails with common.ErrVaultLocked.
type KeyHandle struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// newKeyHandle seals key; the caller's slice is wiped.
func newKeyHandle(key []byte) *KeyHandle {
	return &KeyHandle{enclave: memguard.NewEnclave(key)}
}

func (h *KeyHandle) with(fn func(key []byte) error) error {
	if h == nil {
		return common.ErrVaultLocked
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.enclave == nil {
		return common.ErrVaultLocked
	}
	buf, err := h.enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Alive reports whether the handle still holds a key.
func (h *KeyHandle) Alive() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enclave != nil
}

func (h *KeyHandle) Encrypt(plaintext []byte) (*cryptox.CiphertextEntry, error) {
	var out *cryptox.CiphertextEntry
	err := h.with(func(key []byte) error {
		var err error
		out, err = cryptox.Encrypt(key, plaintext)
		return err
	})
	return out, err
}

func (h *KeyHandle) Decrypt(entry *cryptox.CiphertextEntry) ([]byte, error) {
	var out []byte
	err := h.with(func(key []byte) error {
		var err error
		out, err = cryptox.Decrypt(key, entry)
		return err
	})
	return out, err
}

// destroy drops the key. Operations already running finish first.
func (h *KeyHandle) destroy() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enclave = nil
}
