package cli

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gophjournal/internal/client/vault"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVault(t *testing.T) {
	ctx := context.Background()

	t.Run("mismatch", func(t *testing.T) {
		captureOutput(t)
		stubSecrets(t, "one", "two")
		v := &fakeVault{state: vault.NoBundle}
		a := newTestApp(readerFromLines("n"), &fakeSession{user: "u1"}, v, newFakeJournal())

		require.ErrorIs(t, a.CreateVault(ctx), common.ErrInvalidInput)
		assert.Empty(t, v.created)
	})

	t.Run("created and remembered", func(t *testing.T) {
		out := captureOutput(t)
		stubSecrets(t, "correct horse", "correct horse")
		v := &fakeVault{state: vault.NoBundle}
		a := newTestApp(readerFromLines("y"), &fakeSession{user: "u1"}, v, newFakeJournal())

		require.NoError(t, a.CreateVault(ctx))
		assert.Equal(t, "correct horse", v.created)
		assert.True(t, v.remembered)
		assert.Contains(t, out(), "cannot be recovered")
	})

	t.Run("not logged in", func(t *testing.T) {
		a := newTestApp(nil, &fakeSession{}, &fakeVault{}, newFakeJournal())
		require.ErrorIs(t, a.CreateVault(ctx), common.ErrUnauthenticated)
	})
}

func TestUnlockAndLock(t *testing.T) {
	ctx := context.Background()
	captureOutput(t)
	v := &fakeVault{state: vault.Locked, passphrase: "pw"}
	a := newTestApp(nil, &fakeSession{user: "u1"}, v, newFakeJournal())

	stubSecrets(t, "nope")
	require.ErrorIs(t, a.Unlock(ctx), common.ErrWrongPassphrase)
	assert.Equal(t, vault.Locked, v.state)

	stubSecrets(t, "pw")
	require.NoError(t, a.Unlock(ctx))
	assert.Equal(t, vault.Unlocked, v.state)

	require.NoError(t, a.Remember(ctx))
	assert.True(t, v.rememberOK)

	require.NoError(t, a.Lock(ctx))
	assert.True(t, v.locked)
	require.ErrorIs(t, a.Remember(ctx), common.ErrVaultLocked)

	require.NoError(t, a.Forget(ctx))
	assert.True(t, v.forgotten)
}

func TestResetVault_RequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	out := captureOutput(t)
	v := &fakeVault{state: vault.Unlocked}

	a := newTestApp(readerFromLines("reset"), &fakeSession{user: "u1"}, v, newFakeJournal())
	require.NoError(t, a.ResetVault(ctx))
	assert.False(t, v.reset)
	assert.Contains(t, out(), "cancelled")

	a = newTestApp(readerFromLines("RESET"), &fakeSession{user: "u1"}, v, newFakeJournal())
	require.NoError(t, a.ResetVault(ctx))
	assert.True(t, v.reset)
	assert.Equal(t, vault.NoBundle, v.state)
}

func TestStatus(t *testing.T) {
	out := captureOutput(t)
	j := newFakeJournal()
	j.pending = 3
	a := newTestApp(nil, &fakeSession{user: "u1"}, &fakeVault{state: vault.Locked}, j)
	a.setUser("alice")

	require.NoError(t, a.Status(context.Background()))
	got := out()
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "locked")
	assert.Contains(t, got, "3")
}
