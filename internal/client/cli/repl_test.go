package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	err      error

	calls []string
}

func (f *fakeExec) rec(name string, args ...string) error {
	if len(args) > 0 {
		name += " " + strings.Join(args, " ")
	}
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeExec) isLoggedIn() bool                   { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error { return f.rec("register") }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.rec("login")
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.rec("logout")
}
func (f *fakeExec) CreateVault(ctx context.Context) error { return f.rec("create") }
func (f *fakeExec) Unlock(ctx context.Context) error      { return f.rec("unlock") }
func (f *fakeExec) Lock(ctx context.Context) error        { return f.rec("lock") }
func (f *fakeExec) ResetVault(ctx context.Context) error  { return f.rec("reset") }
func (f *fakeExec) Remember(ctx context.Context) error    { return f.rec("remember") }
func (f *fakeExec) Forget(ctx context.Context) error      { return f.rec("forget") }
func (f *fakeExec) Status(ctx context.Context) error      { return f.rec("status") }
func (f *fakeExec) Write(ctx context.Context, args []string) error {
	return f.rec("write", args...)
}
func (f *fakeExec) Read(ctx context.Context, args []string) error { return f.rec("read", args...) }
func (f *fakeExec) List(ctx context.Context) error                { return f.rec("list") }
func (f *fakeExec) Delete(ctx context.Context, args []string) error {
	return f.rec("delete", args...)
}
func (f *fakeExec) Sync(ctx context.Context) error { return f.rec("sync") }
func (f *fakeExec) Summary(ctx context.Context, args []string) error {
	return f.rec("summary", args...)
}
func (f *fakeExec) Summaries(ctx context.Context) error { return f.rec("summaries") }

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	out := captureOutput(t)

	input := readerFromLines(
		"help",
		"login",
		"help",
		"create",
		"unlock",
		"",
		"write 2024-05-01",
		"read 2024-05-01",
		"l",
		"delete 2024-05-01",
		"summary 2024-05-01 2024-05-07",
		"summaries",
		"sync",
		"status",
		"remember",
		"forget",
		"lock",
		"reset",
		"foobar",
		"logout",
		"exit",
		"register",
	)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, input)

	assert.Equal(t, []string{
		"login", "create", "unlock",
		"write 2024-05-01", "read 2024-05-01", "list", "delete 2024-05-01",
		"summary 2024-05-01 2024-05-07", "summaries", "sync", "status",
		"remember", "forget", "lock", "reset", "logout",
	}, exec.calls, "nothing runs after exit")

	got := out()
	assert.Contains(t, got, helpLoggedOut)
	assert.Contains(t, got, helpLoggedIn)
	assert.Contains(t, got, "Unknown command: foobar")
	assert.Contains(t, got, "Bye!")
}

func TestRunREPL_EOFWithoutNewline(t *testing.T) {
	captureOutput(t)
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, readerFromLines("sync"))
	assert.Equal(t, []string{"sync"}, exec.calls)
}

func TestRunREPL_ReportsErrors(t *testing.T) {
	out := captureOutput(t)
	exec := &fakeExec{err: fmt.Errorf("unlock: %w", common.ErrWrongPassphrase)}
	runREPL(context.Background(), exec, func() string { return "s" }, readerFromLines("unlock", "quit"))

	assert.Contains(t, out(), "Error: wrong passphrase")
}

func TestDescribe(t *testing.T) {
	cases := map[error]string{
		common.ErrVaultLocked:       "vault is locked, run 'unlock'",
		common.ErrNoBundle:          "no vault yet, run 'create'",
		common.ErrCorruptedEntry:    "entry is corrupted and cannot be decrypted",
		common.ErrRemoteUnavailable: "server unavailable",
		common.ErrUnauthenticated:   "not logged in (or session expired), run 'login'",
	}
	for err, want := range cases {
		assert.Equal(t, want, describe(fmt.Errorf("wrapped: %w", err)))
	}
	assert.Equal(t, "wrapped: other", describe(fmt.Errorf("wrapped: %w", errors.New("other"))))
}
