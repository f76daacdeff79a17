package vault

import "errors"

// ErrStale is returned by an operation whose result was discarded because
// the session or the vault changed while it was running.
var ErrStale = errors.New("vault changed during operation")
