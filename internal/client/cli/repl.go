package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophjournal/internal/client/services"
	"github.com/dmitrijs2005/gophjournal/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	CreateVault(ctx context.Context) error
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	ResetVault(ctx context.Context) error
	Remember(ctx context.Context) error
	Forget(ctx context.Context) error
	Status(ctx context.Context) error

	Write(ctx context.Context, args []string) error
	Read(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Summary(ctx context.Context, args []string) error
	Summaries(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, exit"
	helpLoggedIn  = "Available commands: create, unlock, lock, reset, remember, forget, status,\n" +
		"  write [date], read <date>, (l)ist, delete <date>, sync,\n" +
		"  summary <from> <to>, summaries, logout, exit"
)

// runREPL reads commands line by line from reader and dispatches them to a.
// The loop exits on EOF or when the user types "exit" or "quit". Errors
// returned by handlers are reported and the loop continues. Prompts issued by
// the handlers read from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gj %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register":
			report(a.Register(ctx))
		case "login":
			report(a.Login(ctx))
		case "logout":
			report(a.Logout(ctx))

		case "create":
			report(a.CreateVault(ctx))
		case "unlock":
			report(a.Unlock(ctx))
		case "lock":
			report(a.Lock(ctx))
		case "reset":
			report(a.ResetVault(ctx))
		case "remember":
			report(a.Remember(ctx))
		case "forget":
			report(a.Forget(ctx))
		case "status":
			report(a.Status(ctx))

		case "write":
			report(a.Write(ctx, args))
		case "read":
			report(a.Read(ctx, args))
		case "l", "list":
			report(a.List(ctx))
		case "delete":
			report(a.Delete(ctx, args))
		case "sync":
			report(a.Sync(ctx))
		case "summary":
			report(a.Summary(ctx, args))
		case "summaries":
			report(a.Summaries(ctx))

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

// report prints a handler error in user terms.
func report(err error) {
	if err != nil {
		printlnFn("Error:", describe(err))
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrWrongPassphrase):
		return "wrong passphrase"
	case errors.Is(err, common.ErrVaultLocked):
		return "vault is locked, run 'unlock'"
	case errors.Is(err, common.ErrNoBundle):
		return "no vault yet, run 'create'"
	case errors.Is(err, common.ErrBundleExists):
		return "a vault already exists"
	case errors.Is(err, common.ErrVaultNotLoaded):
		return "vault not loaded yet, try again once the server is reachable"
	case errors.Is(err, common.ErrCorruptedEntry):
		return "entry is corrupted and cannot be decrypted"
	case errors.Is(err, common.ErrUnauthenticated):
		return "not logged in (or session expired), run 'login'"
	case errors.Is(err, common.ErrRemoteUnavailable):
		return "server unavailable"
	case errors.Is(err, common.ErrorUnauthorized):
		return "wrong username or password"
	case errors.Is(err, services.ErrLocalDataNotAvailable):
		return "server unavailable and no offline login data on this device"
	case errors.Is(err, common.ErrorNotFound):
		return "not found"
	default:
		return err.Error()
	}
}
