// Package cli provides the interactive GophJournal command-line client.
//
// It wires configuration, the local store, the remote API, the vault and the
// journal services behind a small REPL that keeps working offline. Typical
// flow: log in (online, falling back to offline), load the vault, unlock it
// with the passphrase, then write and read journal days. A background
// connectivity watcher replays queued writes when the server comes back.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
