package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophjournal/internal/client/vault"
	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// getSimpleText, getPassword, getSecret and getMultiline are indirections
// used to facilitate testing. They point to interactive input helpers and can
// be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getSecret     = GetSecret
	getMultiline  = GetMultiline
)

// Register prompts the user for a username and password and creates a new
// account. The password byte slice is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	printlnFn("Success! Now run 'login'.")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unavailable
// it falls back to offline login against the data cached by the last online
// login. The connectivity Mode becomes ModeOnline, ModeOffline or, when both
// fail, ModeDisabled. After a successful login the vault is loaded.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	mode := ModeOnline
	err = a.authService.OnlineLogin(ctx, userName, password)
	if errors.Is(err, common.ErrRemoteUnavailable) {
		printlnFn("Server unavailable, trying offline login...")
		mode = ModeOffline
		err = a.authService.OfflineLogin(ctx, userName, password)
	}
	if err != nil {
		if mode == ModeOffline {
			a.setMode(ModeDisabled)
		}
		return err
	}

	a.setUser(userName)
	a.setMode(mode)
	printlnFn(fmt.Sprintf("Logged in (%s).", mode))
	return a.loadVault(ctx)
}

// loadVault resolves the bundle and tells the user what to do next.
func (a *App) loadVault(ctx context.Context) error {
	if err := a.vault.Load(ctx); err != nil {
		return fmt.Errorf("vault not loaded: %w", err)
	}
	switch a.vault.State() {
	case vault.NoBundle:
		printlnFn("No vault yet. Run 'create' to choose a passphrase.")
	case vault.Locked:
		printlnFn("Vault is locked. Run 'unlock'.")
	case vault.Unlocked:
		printlnFn("Vault unlocked with the key remembered on this device.")
	}
	return nil
}

// Logout signs out and wipes the cached login data. The vault locks through
// the session change.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.setUser("")
	a.setMode("")
	printlnFn("Logged out.")
	return nil
}
