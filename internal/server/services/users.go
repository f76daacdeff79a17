// Package services contains server-side business logic: accounts and
// tokens, wrapped vault bundles and journal rows.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/repomanager"
)

const maxUsernameLen = 64

// UserService handles registration, salt lookup and login.
type UserService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	jwtSecret     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, secretKey string, tokenValidity time.Duration, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &UserService{
		db:            db,
		repomanager:   m,
		jwtSecret:     []byte(secretKey),
		tokenValidity: tokenValidity,
		logger:        logger.With("module", "users"),
	}
}

// Register stores a new account. A taken username yields
// common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be 1..%d characters", common.ErrInvalidInput, maxUsernameLen)
	}
	if len(salt) < cryptox.MinSaltSize {
		return nil, fmt.Errorf("%w: salt shorter than %d bytes", common.ErrInvalidInput, cryptox.MinSaltSize)
	}
	if len(verifier) == 0 {
		return nil, fmt.Errorf("%w: empty verifier", common.ErrInvalidInput)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{UserName: username, Salt: salt, Verifier: verifier})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.logger.Info(ctx, "user registered", "user", u.ID)
	return u, nil
}

// GetSalt returns the user's stored salt or a random salt if the user is
// absent, so the answer does not reveal whether the account exists.
func (s *UserService) GetSalt(ctx context.Context, username string) ([]byte, error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return cryptox.NewSalt(), nil
		}
		s.logger.Error(ctx, "salt lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	return user.Salt, nil
}

// Login checks the verifier and mints an access token.
func (s *UserService) Login(ctx context.Context, username string, verifierCandidate []byte) (userID, token string, err error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", "", common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return "", "", common.ErrorInternal
	}
	if subtle.ConstantTimeCompare(user.Verifier, verifierCandidate) != 1 {
		return "", "", common.ErrorUnauthorized
	}

	token, err = auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return "", "", common.ErrorInternal
	}
	return user.ID, token, nil
}
