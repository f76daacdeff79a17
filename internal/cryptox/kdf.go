package cryptox

import (
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the length of every symmetric key in the vault (AES-256).
	KeySize = 32
	// SaltSize is the length of freshly generated salts.
	SaltSize = 32
	// MinSaltSize is the shortest salt accepted by DeriveKey.
	MinSaltSize = 16
)

// KDFParams are the Argon2id work parameters.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams are the parameters pinned by bundle version 1.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

func (p KDFParams) validate() error {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return fmt.Errorf("%w: zero kdf parameter", common.ErrInvalidInput)
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("%w: kdf memory below 8*threads KiB", common.ErrInvalidInput)
	}
	return nil
}

// DeriveKey stretches passphrase with Argon2id into a KeySize key.
// The result depends only on its inputs.
func DeriveKey(passphrase, salt []byte, p KDFParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrInvalidInput)
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", common.ErrInvalidInput, MinSaltSize)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
}

// DeriveMasterKey derives the account master key used for server login.
// It is independent from the vault passphrase and never encrypts content.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier turns a master key into the value the server stores and
// compares at login.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}
