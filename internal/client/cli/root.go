package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if name := a.user(); name != "" {
		s = name + " "
	}
	if mode := a.Mode(); mode != "" {
		s = s + string(mode)
	}
	if a.vault != nil && a.isLoggedIn() {
		s = s + " " + a.vault.State().String()
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root greets the user, asks for credentials, starts the connectivity
// watcher and runs the REPL until exit.
func (a *App) Root(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printlnFn("Welcome to GophJournal CLI (type 'help' for commands)")

	if a.watcher != nil {
		a.watcher.Probe(ctx)
	}
	if err := a.Login(ctx); err != nil {
		report(err)
	}

	if a.watcher != nil {
		go a.StartOnlineStatusWatcher(ctx)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}
