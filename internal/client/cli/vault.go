package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophjournal/internal/common"
)

const resetConfirmation = "RESET"

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		return common.ErrUnauthenticated
	}
	return nil
}

func (a *App) confirm(prompt string) (bool, error) {
	answer, err := getSimpleText(a.reader, prompt+" [y/N]", os.Stdout)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// CreateVault asks for a new passphrase twice and creates the vault.
func (a *App) CreateVault(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	printlnFn("Choose a vault passphrase. It is never sent to the server and cannot be recovered:")
	printlnFn("if you lose it, your journal is lost.")

	pass, err := getSecret(os.Stdout, "New passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	again, err := getSecret(os.Stdout, "Repeat passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pass, again) {
		return fmt.Errorf("%w: passphrases do not match", common.ErrInvalidInput)
	}

	remember, err := a.confirm("Remember the vault on this device?")
	if err != nil {
		return err
	}

	if err := a.vault.Create(ctx, pass, remember); err != nil {
		return err
	}
	printlnFn("Vault created and unlocked.")
	return nil
}

func (a *App) Unlock(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	pass, err := getSecret(os.Stdout, "Vault passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	if err := a.vault.Unlock(ctx, pass); err != nil {
		return err
	}
	printlnFn("Vault unlocked.")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	a.vault.Lock()
	printlnFn("Vault locked.")
	return nil
}

// ResetVault destroys the vault after an explicit confirmation.
func (a *App) ResetVault(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	printlnFn("Resetting deletes your vault. Everything written so far becomes permanently unreadable.")
	answer, err := getSimpleText(a.reader, fmt.Sprintf("Type %s to continue", resetConfirmation), os.Stdout)
	if err != nil {
		return err
	}
	if answer != resetConfirmation {
		printlnFn("Reset cancelled.")
		return nil
	}

	if err := a.vault.Reset(ctx); err != nil {
		return err
	}
	printlnFn("Vault reset. Run 'create' to start a new one.")
	return nil
}

func (a *App) Remember(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if err := a.vault.RememberDevice(ctx); err != nil {
		return err
	}
	printlnFn("This device will unlock the vault automatically.")
	return nil
}

func (a *App) Forget(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if err := a.vault.ForgetDevice(ctx); err != nil {
		return err
	}
	printlnFn("This device no longer remembers the vault.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	user := a.user()
	if user == "" {
		user = "-"
	}
	mode := a.Mode()
	if mode == "" {
		mode = "-"
	}
	printlnFn("User:   ", user)
	printlnFn("Mode:   ", string(mode))
	if a.isLoggedIn() {
		printlnFn("Vault:  ", a.vault.State().String())
		printlnFn("Pending:", a.journal.Pending(ctx))
	}
	return nil
}
