package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/repomanager"
)

// BundleService keeps one opaque wrapped bundle per user.
type BundleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewBundleService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *BundleService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BundleService{db: db, repomanager: m, logger: logger.With("module", "bundles")}
}

// Get returns the user's bundle or nil when none is stored.
func (s *BundleService) Get(ctx context.Context, userID string) (*cryptox.WrappedBundle, error) {
	b, err := s.repomanager.Bundles(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Put validates and upserts b; nil removes the stored bundle.
func (s *BundleService) Put(ctx context.Context, userID string, b *cryptox.WrappedBundle) error {
	repo := s.repomanager.Bundles(s.db)
	if b == nil {
		if err := repo.Delete(ctx, userID); err != nil {
			return err
		}
		s.logger.Info(ctx, "bundle removed", "user", userID)
		return nil
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if err := repo.Put(ctx, userID, b); err != nil {
		return err
	}
	s.logger.Debug(ctx, "bundle stored", "user", userID, "fingerprint", b.Fingerprint())
	return nil
}
