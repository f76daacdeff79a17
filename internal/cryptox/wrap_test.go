package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	dataKey := NewDataKey()
	derived := NewDataKey()

	b, err := Wrap(dataKey, derived, testSalt(), CurrentBundleVersion)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	got, err := Unwrap(b, derived)
	require.NoError(t, err)
	assert.Equal(t, dataKey, got)
}

func TestUnwrap_WrongDerivedKey(t *testing.T) {
	b, err := Wrap(NewDataKey(), NewDataKey(), testSalt(), CurrentBundleVersion)
	require.NoError(t, err)

	got, err := Unwrap(b, NewDataKey())
	require.ErrorIs(t, err, common.ErrWrongPassphrase)
	require.ErrorIs(t, err, common.ErrAuthenticationFailed)
	assert.Nil(t, got)
}

func TestUnwrap_UnsupportedVersion(t *testing.T) {
	derived := NewDataKey()
	b, err := Wrap(NewDataKey(), derived, testSalt(), CurrentBundleVersion)
	require.NoError(t, err)

	b.Version = 2
	_, err = Unwrap(b, derived)
	require.ErrorIs(t, err, common.ErrInvalidBundle)
}

func TestNewBundle_DeriveAndUnwrap(t *testing.T) {
	dataKey := NewDataKey()
	b, err := NewBundle(dataKey, []byte("correct horse battery staple"))
	require.NoError(t, err)

	salt, err := b.Salt()
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)

	got, err := DeriveAndUnwrap(b, []byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Equal(t, dataKey, got)

	_, err = DeriveAndUnwrap(b, []byte("wrong password"))
	require.ErrorIs(t, err, common.ErrWrongPassphrase)
}

func TestNewBundle_EmptyPassphrase(t *testing.T) {
	_, err := NewBundle(NewDataKey(), nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestWrappedBundle_Validate(t *testing.T) {
	good, err := Wrap(NewDataKey(), NewDataKey(), testSalt(), CurrentBundleVersion)
	require.NoError(t, err)

	mutate := func(f func(b *WrappedBundle)) *WrappedBundle {
		c := *good
		f(&c)
		return &c
	}

	tests := []struct {
		name   string
		bundle *WrappedBundle
	}{
		{name: "nil", bundle: nil},
		{name: "missing wrapped key", bundle: mutate(func(b *WrappedBundle) { b.WrappedKeyB64 = "" })},
		{name: "missing iv", bundle: mutate(func(b *WrappedBundle) { b.IVB64 = "" })},
		{name: "missing salt", bundle: mutate(func(b *WrappedBundle) { b.SaltB64 = "" })},
		{name: "zero version", bundle: mutate(func(b *WrappedBundle) { b.Version = 0 })},
		{name: "bad base64", bundle: mutate(func(b *WrappedBundle) { b.IVB64 = "not base64!" })},
		{name: "short salt", bundle: mutate(func(b *WrappedBundle) { b.SaltB64 = base64.StdEncoding.EncodeToString([]byte("tiny")) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.bundle.Validate(), common.ErrInvalidBundle)
		})
	}
}

func TestWrap_InvalidInput(t *testing.T) {
	_, err := Wrap([]byte("short"), NewDataKey(), testSalt(), CurrentBundleVersion)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Wrap(NewDataKey(), NewDataKey(), []byte("s"), CurrentBundleVersion)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = Wrap(NewDataKey(), []byte("bad"), testSalt(), CurrentBundleVersion)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFingerprint(t *testing.T) {
	key := NewDataKey()
	derived := NewDataKey()
	salt := NewSalt()

	a, err := Wrap(key, derived, salt, CurrentBundleVersion)
	require.NoError(t, err)
	b, err := Wrap(key, derived, salt, CurrentBundleVersion)
	require.NoError(t, err)

	require.Len(t, a.Fingerprint(), 32)
	require.Equal(t, a.Fingerprint(), (&WrappedBundle{
		WrappedKeyB64: a.WrappedKeyB64, IVB64: a.IVB64, SaltB64: a.SaltB64, Version: a.Version,
	}).Fingerprint())
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "fresh iv per wrap")
}
