package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
)

// ErrLocalDataNotAvailable is returned by OfflineLogin when this device has
// never completed an online login.
var ErrLocalDataNotAvailable = errors.New("local data not available")

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server, cache offline auth data
//     and sign the session in with the access token.
//   - OfflineLogin: verify credentials against locally cached data and sign
//     the session in without a token.
//   - Register: create a new user on the server.
//   - Logout: sign the session out and wipe cached auth data.
type AuthService interface {
	OnlineLogin(ctx context.Context, username string, password []byte) error
	OfflineLogin(ctx context.Context, username string, password []byte) error
	Register(ctx context.Context, username string, password []byte) error
	Logout(ctx context.Context) error
}

// AccountClient is the part of the remote API used for authentication.
type AccountClient interface {
	Register(ctx context.Context, username string, salt, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (userID, token string, err error)
}

// Signer is the session the services sign in and out.
type Signer interface {
	SignIn(userID, token string)
	SignOut()
}

// Store is the local store subset the services persist to.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string)
}

// Clearer is per-device state that must not leak from one user to the next.
type Clearer interface {
	Clear(ctx context.Context)
}

type authService struct {
	client  AccountClient
	store   Store
	session Signer
	logger  logging.Logger
	perUser []Clearer
}

// NewAuthService constructs an AuthService. perUser state is cleared when a
// different user signs in on this device.
func NewAuthService(client AccountClient, store Store, session Signer, logger logging.Logger, perUser ...Clearer) AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &authService{client: client, store: store, session: session, logger: logger, perUser: perUser}
}

func (a *authService) cachedAccount(ctx context.Context) (models.Account, bool) {
	var acc models.Account
	if !a.store.GetJSON(ctx, common.AccountKey, &acc) || acc.UserID == "" {
		return models.Account{}, false
	}
	return acc, true
}

// OfflineLogin derives the master key from the cached salt and compares its
// verifier with the cached one. If local data is missing it returns
// ErrLocalDataNotAvailable; on mismatch common.ErrorUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) error {
	acc, ok := a.cachedAccount(ctx)
	if !ok {
		return ErrLocalDataNotAvailable
	}
	if acc.Username != username {
		return common.ErrorUnauthorized
	}

	key := cryptox.DeriveMasterKey(password, acc.Salt)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	if subtle.ConstantTimeCompare(acc.Verifier, verifier) == 0 {
		return common.ErrorUnauthorized
	}

	a.session.SignIn(acc.UserID, "")
	a.logger.Info(ctx, "offline login", "user", acc.UserID)
	return nil
}

// OnlineLogin authenticates against the server, saves the data needed for
// offline login and signs the session in.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}

	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	userID, token, err := a.client.Login(ctx, username, verifier)
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	var prev string
	if a.store.GetJSON(ctx, common.LastUserKey, &prev) && prev != userID {
		for _, c := range a.perUser {
			c.Clear(ctx)
		}
		a.logger.Info(ctx, "cleared local data of previous user", "user", prev)
	}
	if err := a.store.SetJSON(ctx, common.LastUserKey, userID); err != nil {
		return fmt.Errorf("offline data saving error: %w", err)
	}

	acc := models.Account{Username: username, UserID: userID, Salt: salt, Verifier: verifier}
	if err := a.store.SetJSON(ctx, common.AccountKey, acc); err != nil {
		return fmt.Errorf("offline data saving error: %w", err)
	}

	a.session.SignIn(userID, token)
	a.logger.Info(ctx, "online login", "user", userID)
	return nil
}

// Register creates a new account on the server. It generates a random salt,
// derives a master key from the password and sends salt and verifier.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	if username == "" || len(password) == 0 {
		return fmt.Errorf("%w: username and password are required", common.ErrInvalidInput)
	}

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	key := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(key)
	verifier := cryptox.MakeVerifier(key)

	return a.client.Register(ctx, username, salt, verifier)
}

// Logout signs out and wipes the cached auth data. Cached journal entries
// and queued writes are kept until another user signs in.
func (a *authService) Logout(ctx context.Context) error {
	a.session.SignOut()
	a.store.Delete(ctx, common.AccountKey)
	return nil
}
