// Package devicekey implements "remember this device" without storing the
// passphrase: a random device key lives in the OS keystore and the data key,
// encrypted under it, lives in the local store. Both halves are needed to
// unlock; deleting either one forgets the device.
//
// A remembered key is bound to the fingerprint of the bundle it was
// unwrapped from, so a vault reset elsewhere invalidates it.
package devicekey

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
)

const ServiceName = "gophjournal"

// Store is the subset of the local store the keeper needs.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string)
}

type Keeper struct {
	ring   keyring.Keyring
	store  Store
	logger logging.Logger
}

func New(ring keyring.Keyring, store Store, logger logging.Logger) *Keeper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Keeper{ring: ring, store: store, logger: logger}
}

// OpenKeyring opens the platform keystore. When no system backend is
// available the encrypted file backend under fileDir is used, protected by
// password.
func OpenKeyring(fileDir string, password keyring.PromptFunc) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              ServiceName,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         password,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

type record struct {
	Bundle string                  `json:"bundle"`
	Key    cryptox.CiphertextEntry `json:"key"`
}

func ringKey(userID string) string {
	return ServiceName + "/" + userID
}

// Remember stores a device-bound copy of dataKey for userID and the bundle
// identified by fingerprint, replacing any previous one.
func (k *Keeper) Remember(ctx context.Context, userID, fingerprint string, dataKey []byte) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", common.ErrInvalidInput)
	}

	deviceKey := cryptox.NewDataKey()
	defer common.WipeByteArray(deviceKey)

	sealed, err := cryptox.Encrypt(deviceKey, dataKey)
	if err != nil {
		return fmt.Errorf("seal data key: %w", err)
	}

	if err := k.ring.Set(keyring.Item{
		Key:         ringKey(userID),
		Data:        append([]byte(nil), deviceKey...),
		Label:       "GophJournal device key",
		Description: "Unlocks the journal vault on this device",
	}); err != nil {
		return fmt.Errorf("store device key: %w", err)
	}

	rec := record{Bundle: fingerprint, Key: *sealed}
	if err := k.store.SetJSON(ctx, common.UserKey(common.DeviceKeyPrefix, userID), rec); err != nil {
		_ = k.ring.Remove(ringKey(userID))
		return err
	}
	return nil
}

// Recall returns the data key remembered for userID and the bundle
// identified by fingerprint. common.ErrorNotFound means the device was never
// remembered or one half is gone. A copy made for another bundle, or one
// that no longer decrypts, is forgotten.
func (k *Keeper) Recall(ctx context.Context, userID, fingerprint string) ([]byte, error) {
	var rec record
	if !k.store.GetJSON(ctx, common.UserKey(common.DeviceKeyPrefix, userID), &rec) {
		return nil, common.ErrorNotFound
	}
	if rec.Bundle != fingerprint {
		k.logger.Info(ctx, "remembered key belongs to another vault, forgetting device", "user", userID)
		_ = k.Forget(ctx, userID)
		return nil, common.ErrorNotFound
	}

	item, err := k.ring.Get(ringKey(userID))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read device key: %w", err)
	}

	dataKey, err := cryptox.Decrypt(item.Data, &rec.Key)
	if err != nil {
		k.logger.Warn(ctx, "remembered key unusable, forgetting device", "user", userID, "error", err)
		_ = k.Forget(ctx, userID)
		return nil, fmt.Errorf("%w: %w", common.ErrorNotFound, err)
	}
	if len(dataKey) != cryptox.KeySize {
		common.WipeByteArray(dataKey)
		_ = k.Forget(ctx, userID)
		return nil, fmt.Errorf("%w: remembered key has wrong size", common.ErrorNotFound)
	}
	return dataKey, nil
}

// Forget removes both halves. Forgetting an unknown user is not an error.
func (k *Keeper) Forget(ctx context.Context, userID string) error {
	k.store.Delete(ctx, common.UserKey(common.DeviceKeyPrefix, userID))
	if err := k.ring.Remove(ringKey(userID)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove device key: %w", err)
	}
	return nil
}
