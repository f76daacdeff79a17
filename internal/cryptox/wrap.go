package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// BundleVersion1 is Argon2id (DefaultKDFParams) + AES-256-GCM.
const BundleVersion1 = 1

// CurrentBundleVersion is used for every newly created vault.
const CurrentBundleVersion = BundleVersion1

// WrappedBundle is the persisted, encrypted form of the data key plus what is
// needed to re-derive the unwrapping key. It is safe to store anywhere.
type WrappedBundle struct {
	WrappedKeyB64 string `json:"wrapped_b64"`
	IVB64         string `json:"iv_b64"`
	SaltB64       string `json:"salt_b64"`
	Version       int    `json:"version"`
}

// ParamsForVersion returns the KDF parameters a bundle version was made with.
func ParamsForVersion(version int) (KDFParams, error) {
	switch version {
	case BundleVersion1:
		return DefaultKDFParams(), nil
	default:
		return KDFParams{}, fmt.Errorf("%w: unsupported version %d", common.ErrInvalidBundle, version)
	}
}

func bundleAAD(version int) []byte {
	return []byte(fmt.Sprintf("gophjournal/bundle/v%d", version))
}

// Validate checks that every field is present and decodable.
func (b *WrappedBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", common.ErrInvalidBundle)
	}
	if b.WrappedKeyB64 == "" || b.IVB64 == "" || b.SaltB64 == "" {
		return fmt.Errorf("%w: missing field", common.ErrInvalidBundle)
	}
	if _, err := ParamsForVersion(b.Version); err != nil {
		return err
	}
	for field, value := range map[string]string{"wrapped_b64": b.WrappedKeyB64, "iv_b64": b.IVB64} {
		if _, err := decodeB64(field, value, common.ErrInvalidBundle); err != nil {
			return err
		}
	}
	salt, err := b.Salt()
	if err != nil {
		return err
	}
	if len(salt) < MinSaltSize {
		return fmt.Errorf("%w: salt shorter than %d bytes", common.ErrInvalidBundle, MinSaltSize)
	}
	return nil
}

// Salt decodes the bundle salt.
func (b *WrappedBundle) Salt() ([]byte, error) {
	return decodeB64("salt_b64", b.SaltB64, common.ErrInvalidBundle)
}

// Fingerprint identifies a bundle. Two bundles with the same fingerprint
// wrap the same data key the same way.
func (b *WrappedBundle) Fingerprint() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s", b.Version, b.SaltB64, b.IVB64, b.WrappedKeyB64)))
	return hex.EncodeToString(h[:16])
}

// NewDataKey returns a fresh random data key.
func NewDataKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// NewSalt returns a fresh random salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// Wrap encrypts dataKey under derivedKey and bundles it with salt.
func Wrap(dataKey, derivedKey, salt []byte, version int) (*WrappedBundle, error) {
	if len(dataKey) != KeySize {
		return nil, fmt.Errorf("%w: data key must be %d bytes", common.ErrInvalidInput, KeySize)
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", common.ErrInvalidInput, MinSaltSize)
	}
	if _, err := ParamsForVersion(version); err != nil {
		return nil, err
	}
	ct, nonce, err := seal(derivedKey, dataKey, bundleAAD(version))
	if err != nil {
		return nil, err
	}
	return &WrappedBundle{
		WrappedKeyB64: base64.StdEncoding.EncodeToString(ct),
		IVB64:         base64.StdEncoding.EncodeToString(nonce),
		SaltB64:       base64.StdEncoding.EncodeToString(salt),
		Version:       version,
	}, nil
}

// Unwrap recovers the data key. An authentication failure means the key was
// derived from the wrong passphrase and is reported as ErrWrongPassphrase.
func Unwrap(b *WrappedBundle, derivedKey []byte) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	ct, _ := base64.StdEncoding.DecodeString(b.WrappedKeyB64)
	nonce, _ := base64.StdEncoding.DecodeString(b.IVB64)
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", common.ErrInvalidBundle, NonceSize)
	}

	dataKey, err := open(derivedKey, ct, nonce, bundleAAD(b.Version))
	if err != nil {
		if errors.Is(err, common.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w: %w", common.ErrWrongPassphrase, err)
		}
		return nil, err
	}
	if len(dataKey) != KeySize {
		common.WipeByteArray(dataKey)
		return nil, fmt.Errorf("%w: unwrapped key has wrong size", common.ErrInvalidBundle)
	}
	return dataKey, nil
}

// DeriveAndUnwrap derives the key for passphrase against the bundle salt and
// unwraps the data key. The derived key is wiped before returning.
func DeriveAndUnwrap(b *WrappedBundle, passphrase []byte) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	params, err := ParamsForVersion(b.Version)
	if err != nil {
		return nil, err
	}
	salt, err := b.Salt()
	if err != nil {
		return nil, err
	}
	derived, err := DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(derived)
	return Unwrap(b, derived)
}

// NewBundle creates a fresh salt, derives a key from passphrase and wraps
// dataKey with the current bundle version.
func NewBundle(dataKey, passphrase []byte) (*WrappedBundle, error) {
	params, err := ParamsForVersion(CurrentBundleVersion)
	if err != nil {
		return nil, err
	}
	salt := NewSalt()
	derived, err := DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(derived)
	return Wrap(dataKey, derived, salt, CurrentBundleVersion)
}
