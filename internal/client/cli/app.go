package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/client/config"
	"github.com/dmitrijs2005/gophjournal/internal/client/devicekey"
	"github.com/dmitrijs2005/gophjournal/internal/client/entrycache"
	"github.com/dmitrijs2005/gophjournal/internal/client/health"
	"github.com/dmitrijs2005/gophjournal/internal/client/localstore"
	"github.com/dmitrijs2005/gophjournal/internal/client/remote"
	"github.com/dmitrijs2005/gophjournal/internal/client/services"
	"github.com/dmitrijs2005/gophjournal/internal/client/session"
	"github.com/dmitrijs2005/gophjournal/internal/client/syncqueue"
	"github.com/dmitrijs2005/gophjournal/internal/client/vault"
	"github.com/dmitrijs2005/gophjournal/internal/filex"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// vaultControl is the vault surface the CLI drives.
type vaultControl interface {
	State() vault.State
	Load(ctx context.Context) error
	Create(ctx context.Context, passphrase []byte, remember bool) error
	Unlock(ctx context.Context, passphrase []byte) error
	Lock()
	Reset(ctx context.Context) error
	RememberDevice(ctx context.Context) error
	ForgetDevice(ctx context.Context) error
}

// sessionView tells who is signed in and whether the session can reach the
// server (offline sessions have no token).
type sessionView interface {
	Current() (string, bool)
	Token() string
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	authService services.AuthService
	journal     services.JournalService
	vault       vaultControl
	session     sessionView
	watcher     *health.Watcher
	closers     []func() error
	reader      *bufio.Reader

	mu       sync.RWMutex
	mode     Mode
	userName string
}

// NewApp builds the client from configuration. Failures of the local
// database or the OS keystore are not fatal: the store falls back to memory
// and "remember this device" is disabled.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if _, err := filex.EnsurePrivateDir(c.DataDir); err != nil {
		logger.Warn(ctx, "data directory not available", "dir", c.DataDir, "error", err)
	}

	store := localstore.Open(ctx, c.DSN(), logger)
	sess := session.New()
	api := remote.New(c.ServerURL, sess, c.RequestTimeout)
	queue := syncqueue.New(store, api, logger)
	cache := entrycache.New(store)
	limits := remote.NewLimitsCache(api, c.LimitsTTL, logger)

	var devices vault.DeviceKeys
	ring, err := devicekey.OpenKeyring(c.KeyringDir(), keyringPassword)
	if err != nil {
		logger.Warn(ctx, "keyring unavailable, remembering devices is disabled", "error", err)
	} else {
		devices = devicekey.New(ring, store, logger)
	}

	vm := vault.New(api, vault.Options{Store: store, Queue: queue, Devices: devices, Logger: logger})
	unbind := vm.Bind(sess)
	unsubscribe := sess.Subscribe(func(e session.Event) {
		if e.SignedOut() || e.UserChanged() {
			limits.Invalidate()
		}
	})

	checker, err := health.NewChecker(c.HealthAddr, 3*time.Second)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{
		config:      c,
		logger:      logger,
		authService: services.NewAuthService(api, store, sess, logger, cache, queue),
		journal:     services.NewJournalService(vm, api, cache, queue, limits, store, logger),
		vault:       vm,
		session:     sess,
		watcher:     health.NewWatcher(checker, c.OnlineCheckInterval, logger),
		closers: []func() error{
			func() error { unsubscribe(); unbind(); vm.Lock(); return nil },
			checker.Close,
			store.Close,
		},
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func keyringPassword(prompt string) (string, error) {
	pw, err := GetSecret(os.Stderr, prompt+": ")
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a *App) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed && a.logger != nil {
		a.logger.Info(context.Background(), "connectivity mode changed", "mode", string(mode))
	}
}

func (a *App) setUser(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userName = name
}

func (a *App) user() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userName
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

// Close releases the local store and the health connection and drops the
// data key from memory.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	if a.session == nil {
		return false
	}
	_, ok := a.session.Current()
	return ok
}

// onConnectivity reacts to the watcher. Coming online replays queued writes
// and loads the vault if that failed earlier.
func (a *App) onConnectivity(ctx context.Context, online bool) {
	if !online {
		if a.isLoggedIn() {
			a.setMode(ModeOffline)
		}
		return
	}
	if !a.isLoggedIn() {
		return
	}
	if a.session.Token() == "" {
		printlnFn("Server is reachable again. Run 'login' to sync your journal.")
		return
	}

	a.setMode(ModeOnline)
	if n := a.journal.Sync(ctx); n > 0 {
		printlnFn(fmt.Sprintf("Synced %d queued change(s).", n))
	}
	if a.vault.State() == vault.Uninitialized {
		if err := a.vault.Load(ctx); err != nil {
			a.logger.Warn(ctx, "vault load failed", "error", err)
		}
	}
}

// StartOnlineStatusWatcher probes the server until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context) {
	a.watcher.OnChange(func(online bool) { a.onConnectivity(ctx, online) })
	a.watcher.Run(ctx)
}
