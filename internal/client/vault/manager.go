// Package vault owns the client-side encryption boundary of the journal.
//
// The Manager resolves the user's wrapped bundle, turns a passphrase into the
// data key and holds that key in guarded memory while the vault is unlocked.
// Journal content is encrypted and decrypted only through the Manager or the
// KeyHandle it hands out.
//
// State changes (Create, Unlock, Lock, Reset) are serialized. Encryption and
// decryption may run concurrently with each other. A bundle lookup whose
// context is cancelled, or that is overtaken by a session change or another
// transition, never commits its result.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/gophjournal/internal/client/remote"
	"github.com/dmitrijs2005/gophjournal/internal/client/session"
	"github.com/dmitrijs2005/gophjournal/internal/client/syncqueue"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"golang.org/x/sync/singleflight"
)

// BundleStore is the remote copy of the wrapped bundle, keyed by the
// signed-in user. GetBundle returns nil when the user has no bundle; PutBundle
// with nil deletes it.
type BundleStore interface {
	GetBundle(ctx context.Context) (*cryptox.WrappedBundle, error)
	PutBundle(ctx context.Context, b *cryptox.WrappedBundle) error
}

// LocalStore keeps the opt-in bundle cache.
type LocalStore interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string)
}

// Queue defers bundle writes the server could not take.
type Queue interface {
	Enqueue(ctx context.Context, method, url string, body any) error
	Pending(ctx context.Context, url string) (syncqueue.Item, bool)
}

// DeviceKeys remembers the data key on this device.
type DeviceKeys interface {
	Remember(ctx context.Context, userID, fingerprint string, dataKey []byte) error
	Recall(ctx context.Context, userID, fingerprint string) ([]byte, error)
	Forget(ctx context.Context, userID string) error
}

// Sessions is the source of session changes.
type Sessions interface {
	Current() (string, bool)
	Subscribe(fn func(session.Event)) (unsubscribe func())
}

type Options struct {
	Store   LocalStore
	Queue   Queue
	Devices DeviceKeys
	Logger  logging.Logger
}

type Manager struct {
	remote  BundleStore
	store   LocalStore
	queue   Queue
	devices DeviceKeys
	logger  logging.Logger

	// opMu serializes transitions: one derivation at a time.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	userID  string
	bundle  *cryptox.WrappedBundle
	key     *KeyHandle
	loading int
	// epoch changes with the session; gen with every Create and Reset.
	epoch uint64
	gen   uint64

	group singleflight.Group
}

func New(bundles BundleStore, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Manager{
		remote:  bundles,
		store:   opts.Store,
		queue:   opts.Queue,
		devices: opts.Devices,
		logger:  opts.Logger,
	}
}

// Bind follows the session: the current user is adopted immediately and
// later changes go through HandleSessionChange. The returned function stops
// following.
func (m *Manager) Bind(s Sessions) (unbind func()) {
	if id, ok := s.Current(); ok {
		m.HandleSessionChange(session.Event{UserID: id, Authenticated: true})
	}
	return s.Subscribe(m.HandleSessionChange)
}

// HandleSessionChange drops every in-memory secret when the user signs out
// or a different user signs in. Operations in flight are invalidated.
func (m *Manager) HandleSessionChange(e session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !e.SignedOut() && e.UserID == m.userID {
		return
	}
	m.resetLocked()
	if e.SignedOut() {
		m.userID = ""
	} else {
		m.userID = e.UserID
	}
}

func (m *Manager) resetLocked() {
	m.key.destroy()
	m.key = nil
	m.bundle = nil
	m.state = Uninitialized
	m.loading = 0
	m.epoch++
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// HasBundle reports whether the user has a vault.
func (m *Manager) HasBundle() bool {
	s := m.State()
	return s == Locked || s == Unlocked
}

// Loading reports whether a bundle lookup is in flight.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading > 0
}

// DataKey returns the handle of the unlocked data key, or nil.
func (m *Manager) DataKey() *KeyHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Unlocked {
		return nil
	}
	return m.key
}

// UserID is the user the vault currently belongs to.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

func (m *Manager) cacheKey(userID string) string {
	return common.UserKey(common.BundleCachePrefix, userID)
}

func (m *Manager) cachedBundle(ctx context.Context, userID string) (*cryptox.WrappedBundle, bool) {
	if m.store == nil {
		return nil, false
	}
	var b cryptox.WrappedBundle
	if !m.store.GetJSON(ctx, m.cacheKey(userID), &b) {
		return nil, false
	}
	if err := b.Validate(); err != nil {
		m.logger.Warn(ctx, "cached bundle is invalid, discarding", "error", err)
		m.store.Delete(ctx, m.cacheKey(userID))
		return nil, false
	}
	return &b, true
}

func (m *Manager) cacheBundle(ctx context.Context, userID string, b *cryptox.WrappedBundle) {
	if m.store == nil {
		return
	}
	if err := m.store.SetJSON(ctx, m.cacheKey(userID), b); err != nil {
		m.logger.Warn(ctx, "bundle not cached", "error", err)
	}
}

// refreshCache keeps an existing opt-in cache in line with the server.
func (m *Manager) refreshCache(ctx context.Context, userID string, b *cryptox.WrappedBundle) {
	if m.store == nil {
		return
	}
	if b == nil {
		m.store.Delete(ctx, m.cacheKey(userID))
		return
	}
	if _, ok := m.cachedBundle(ctx, userID); ok {
		m.cacheBundle(ctx, userID, b)
	}
}

// pendingBundle returns a bundle write still waiting in the queue. Such a
// write is newer than anything the server holds.
func (m *Manager) pendingBundle(ctx context.Context) (*cryptox.WrappedBundle, bool) {
	if m.queue == nil {
		return nil, false
	}
	it, ok := m.queue.Pending(ctx, remote.BundlePath)
	if !ok || it.Method != http.MethodPut {
		return nil, false
	}
	var env remote.BundleEnvelope
	if err := json.Unmarshal(it.Body, &env); err != nil {
		return nil, false
	}
	if env.Bundle != nil && env.Bundle.Validate() != nil {
		return nil, false
	}
	return env.Bundle, true
}

// fetch shares one request per user between concurrent callers. The request
// itself is detached from ctx; a caller that gives up just stops waiting.
func (m *Manager) fetch(ctx context.Context, userID string) (*cryptox.WrappedBundle, error) {
	ch := m.group.DoChan(userID, func() (any, error) {
		return m.remote.GetBundle(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		b, _ := res.Val.(*cryptox.WrappedBundle)
		return b, res.Err
	}
}

// Load resolves the bundle of the signed-in user. When the server is
// unreachable the local bundle cache is used; without a cache the error is
// returned and the state is left as it was. An unauthenticated answer is
// always returned as such.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	userID, epoch, gen, prev := m.userID, m.epoch, m.gen, m.state
	if userID == "" {
		m.mu.Unlock()
		return common.ErrUnauthenticated
	}
	m.loading++
	if m.state == Uninitialized {
		m.state = Loading
	}
	m.mu.Unlock()

	bundle, err := m.fetch(ctx, userID)
	fromServer := err == nil
	if errors.Is(err, common.ErrRemoteUnavailable) {
		if cached, ok := m.cachedBundle(ctx, userID); ok {
			m.logger.Warn(ctx, "server unavailable, using cached bundle", "error", err)
			bundle, err = cached, nil
		}
	}
	if err == nil {
		if pending, ok := m.pendingBundle(ctx); ok {
			bundle = pending
			fromServer = false
		}
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrStale
	}
	m.loading--
	restore := func() {
		if m.state == Loading && m.loading == 0 {
			m.state = prev
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		restore()
		m.mu.Unlock()
		return ctxErr
	}
	if err != nil {
		restore()
		m.mu.Unlock()
		return fmt.Errorf("load bundle: %w", err)
	}
	if m.gen != gen {
		m.mu.Unlock()
		return ErrStale
	}
	m.commitLocked(ctx, bundle)
	state := m.state
	m.mu.Unlock()

	if fromServer {
		m.refreshCache(ctx, userID, bundle)
	}
	if state == Locked {
		m.autoUnlock(ctx, userID, bundle, epoch, gen)
	}
	return nil
}

// commitLocked applies a freshly resolved bundle. A missing bundle, or one
// that differs from the bundle the held key came from, drops the key.
func (m *Manager) commitLocked(ctx context.Context, b *cryptox.WrappedBundle) {
	if b == nil {
		if m.key != nil {
			m.logger.Warn(ctx, "vault was reset, dropping data key", "user", m.userID)
		}
		m.key.destroy()
		m.key = nil
		m.bundle = nil
		m.state = NoBundle
		return
	}

	if m.state == Unlocked && sameBundle(m.bundle, b) {
		m.bundle = b
		return
	}
	if m.key != nil {
		m.logger.Warn(ctx, "vault bundle replaced, locking", "user", m.userID)
	}
	m.key.destroy()
	m.key = nil
	m.bundle = b
	m.state = Locked
}

func sameBundle(a, b *cryptox.WrappedBundle) bool {
	return a != nil && b != nil && a.Fingerprint() == b.Fingerprint()
}

func (m *Manager) autoUnlock(ctx context.Context, userID string, b *cryptox.WrappedBundle, epoch, gen uint64) {
	if m.devices == nil {
		return
	}
	key, err := m.devices.Recall(ctx, userID, b.Fingerprint())
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			m.logger.Warn(ctx, "remembered key unavailable", "error", err)
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.gen != gen || m.state != Locked || !sameBundle(m.bundle, b) {
		common.WipeByteArray(key)
		return
	}
	m.key = newKeyHandle(key)
	m.state = Unlocked
	m.logger.Info(ctx, "vault unlocked with remembered device key", "user", userID)
}

// Create makes a new vault protected by passphrase. It is only valid when
// the user has no bundle. If the server is unreachable the upload is queued
// and the bundle cached locally so the vault survives a restart. With
// remember, the bundle is cached and the data key is remembered on this
// device.
func (m *Manager) Create(ctx context.Context, passphrase []byte, remember bool) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	state, userID, epoch := m.state, m.userID, m.epoch
	m.mu.RUnlock()

	if userID == "" {
		return common.ErrUnauthenticated
	}
	switch state {
	case NoBundle:
	case Locked, Unlocked:
		return common.ErrBundleExists
	default:
		return common.ErrVaultNotLoaded
	}
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", common.ErrInvalidInput)
	}

	dataKey := cryptox.NewDataKey()
	defer common.WipeByteArray(dataKey)

	bundle, err := cryptox.NewBundle(dataKey, passphrase)
	if err != nil {
		return fmt.Errorf("wrap data key: %w", err)
	}

	deferred := false
	if err := m.remote.PutBundle(ctx, bundle); err != nil {
		if !errors.Is(err, common.ErrRemoteUnavailable) || m.queue == nil {
			return fmt.Errorf("store bundle: %w", err)
		}
		if err := m.queue.Enqueue(ctx, http.MethodPut, remote.BundlePath, remote.BundleEnvelope{Bundle: bundle}); err != nil {
			return fmt.Errorf("queue bundle: %w", err)
		}
		deferred = true
		m.logger.Warn(ctx, "server unavailable, bundle upload queued", "error", err)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrStale
	}
	m.key.destroy()
	m.bundle = bundle
	m.key = newKeyHandle(append([]byte(nil), dataKey...))
	m.state = Unlocked
	m.gen++
	m.mu.Unlock()

	if deferred || remember {
		m.cacheBundle(ctx, userID, bundle)
	}
	if remember {
		m.remember(ctx, userID, bundle, dataKey)
	}
	m.logger.Info(ctx, "vault created", "user", userID, "deferred", deferred)
	return nil
}

func (m *Manager) remember(ctx context.Context, userID string, b *cryptox.WrappedBundle, dataKey []byte) {
	if m.devices == nil {
		return
	}
	if err := m.devices.Remember(ctx, userID, b.Fingerprint(), dataKey); err != nil {
		m.logger.Warn(ctx, "device not remembered", "error", err)
	}
}

// Unlock derives the key from passphrase and unwraps the data key. A wrong
// passphrase returns common.ErrWrongPassphrase and changes nothing. Unlocking
// an unlocked vault is a no-op.
func (m *Manager) Unlock(ctx context.Context, passphrase []byte) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	state, bundle, epoch, gen := m.state, m.bundle, m.epoch, m.gen
	m.mu.RUnlock()

	switch state {
	case Unlocked:
		return nil
	case Locked:
	case NoBundle:
		return common.ErrNoBundle
	default:
		return common.ErrVaultNotLoaded
	}

	dataKey, err := cryptox.DeriveAndUnwrap(bundle, passphrase)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.gen != gen || !sameBundle(m.bundle, bundle) {
		common.WipeByteArray(dataKey)
		return ErrStale
	}
	if m.state == Unlocked {
		common.WipeByteArray(dataKey)
		return nil
	}
	m.key = newKeyHandle(dataKey)
	m.state = Unlocked
	m.logger.Info(ctx, "vault unlocked", "user", m.userID)
	return nil
}

// Lock drops the data key from memory. The bundle is kept.
func (m *Manager) Lock() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.key.destroy()
	m.key = nil
	if m.state == Unlocked {
		m.state = Locked
	}
}

// RememberDevice caches the bundle and stores a device-bound copy of the
// unlocked data key, so the next Load unlocks without a passphrase.
func (m *Manager) RememberDevice(ctx context.Context) error {
	m.mu.RLock()
	userID, bundle, key, state := m.userID, m.bundle, m.key, m.state
	m.mu.RUnlock()

	if state != Unlocked {
		return common.ErrVaultLocked
	}
	if m.devices == nil {
		return fmt.Errorf("%w: no device keystore", common.ErrInvalidInput)
	}
	m.cacheBundle(ctx, userID, bundle)
	return key.with(func(dataKey []byte) error {
		return m.devices.Remember(ctx, userID, bundle.Fingerprint(), dataKey)
	})
}

// ForgetDevice removes the remembered key and the bundle cache.
func (m *Manager) ForgetDevice(ctx context.Context) error {
	userID := m.UserID()
	if userID == "" {
		return common.ErrUnauthenticated
	}
	if m.store != nil {
		m.store.Delete(ctx, m.cacheKey(userID))
	}
	if m.devices == nil {
		return nil
	}
	return m.devices.Forget(ctx, userID)
}

// Reset deletes the bundle on the server and on this device. Everything
// encrypted under the old data key becomes unreadable.
func (m *Manager) Reset(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	userID := m.UserID()
	if userID == "" {
		return common.ErrUnauthenticated
	}

	if err := m.remote.PutBundle(ctx, nil); err != nil {
		if !errors.Is(err, common.ErrRemoteUnavailable) || m.queue == nil {
			return fmt.Errorf("delete bundle: %w", err)
		}
		if err := m.queue.Enqueue(ctx, http.MethodPut, remote.BundlePath, remote.BundleEnvelope{}); err != nil {
			return fmt.Errorf("queue bundle delete: %w", err)
		}
		m.logger.Warn(ctx, "server unavailable, bundle delete queued", "error", err)
	}

	m.mu.Lock()
	m.key.destroy()
	m.key = nil
	m.bundle = nil
	m.state = NoBundle
	m.gen++
	m.mu.Unlock()

	if err := m.ForgetDevice(ctx); err != nil {
		m.logger.Warn(ctx, "device key not removed", "error", err)
	}
	m.logger.Info(ctx, "vault reset", "user", userID)
	return nil
}

// EncryptForStorage seals plaintext under the data key.
func (m *Manager) EncryptForStorage(plaintext []byte) (*cryptox.CiphertextEntry, error) {
	return m.DataKey().Encrypt(plaintext)
}

// DecryptFromStorage opens a stored record. Integrity failures are reported
// as common.ErrCorruptedEntry.
func (m *Manager) DecryptFromStorage(entry *cryptox.CiphertextEntry) ([]byte, error) {
	plaintext, err := m.DataKey().Decrypt(entry)
	if err != nil {
		if errors.Is(err, common.ErrAuthenticationFailed) || errors.Is(err, common.ErrInvalidCiphertext) {
			return nil, fmt.Errorf("%w: %w", common.ErrCorruptedEntry, err)
		}
		return nil, err
	}
	return plaintext, nil
}
