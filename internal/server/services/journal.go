package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/dbx"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/repomanager"
)

// ErrEntryTooLarge is returned for ciphertext above the published limit.
var ErrEntryTooLarge = fmt.Errorf("%w: entry too large", common.ErrInvalidInput)

// gcmOverhead is the authentication tag appended to every ciphertext.
const gcmOverhead = 16

// JournalService stores encrypted journal rows. It never sees plaintext.
type JournalService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	limits      models.Limits
	logger      logging.Logger
	now         func() time.Time
}

func NewJournalService(db *sql.DB, m repomanager.RepositoryManager, limits models.Limits, logger logging.Logger) *JournalService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &JournalService{
		db:          db,
		repomanager: m,
		limits:      limits,
		logger:      logger.With("module", "journal"),
		now:         time.Now,
	}
}

// Limits returns the constraints published to clients.
func (s *JournalService) Limits() models.Limits {
	return s.limits
}

// ValidateDate checks the canonical YYYY-MM-DD form.
func ValidateDate(date string) error {
	t, err := time.Parse(common.DateLayout, date)
	if err != nil || t.Format(common.DateLayout) != date {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", common.ErrInvalidInput)
	}
	return nil
}

func (s *JournalService) List(ctx context.Context, userID string) ([]models.JournalRow, error) {
	return s.repomanager.Journal(s.db).List(ctx, userID)
}

func (s *JournalService) Get(ctx context.Context, userID, date string) (*models.JournalRow, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	return s.repomanager.Journal(s.db).Get(ctx, userID, date)
}

// Put upserts row. When the stored copy is newer the write is refused with
// common.ErrVersionConflict and the stored copy is returned alongside.
func (s *JournalService) Put(ctx context.Context, row *models.JournalRow) (*models.JournalRow, error) {
	if err := s.validate(row); err != nil {
		return nil, err
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = s.now().UTC()
	}

	var current *models.JournalRow
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Journal(tx)
		err := repo.Upsert(ctx, row)
		if errors.Is(err, common.ErrVersionConflict) {
			if c, getErr := repo.Get(ctx, row.UserID, row.Date); getErr == nil {
				current = c
			}
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			s.logger.Debug(ctx, "stale journal write refused", "user", row.UserID, "date", row.Date)
		}
		return current, err
	}
	return row, nil
}

func (s *JournalService) Delete(ctx context.Context, userID, date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	return s.repomanager.Journal(s.db).Delete(ctx, userID, date)
}

func (s *JournalService) validate(row *models.JournalRow) error {
	if err := ValidateDate(row.Date); err != nil {
		return err
	}
	if row.CipherB64 == "" || row.IVB64 == "" {
		return fmt.Errorf("%w: missing ciphertext", common.ErrInvalidInput)
	}
	iv, err := base64.StdEncoding.DecodeString(row.IVB64)
	if err != nil || len(iv) != cryptox.NonceSize {
		return fmt.Errorf("%w: bad iv", common.ErrInvalidInput)
	}
	ct, err := base64.StdEncoding.DecodeString(row.CipherB64)
	if err != nil {
		return fmt.Errorf("%w: bad ciphertext encoding", common.ErrInvalidInput)
	}
	if s.limits.MaxEntryBytes > 0 && len(ct) > s.limits.MaxEntryBytes+gcmOverhead {
		return ErrEntryTooLarge
	}
	return nil
}
