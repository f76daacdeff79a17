package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophjournal/internal/client/entrycache"
	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/dmitrijs2005/gophjournal/internal/client/remote"
	"github.com/dmitrijs2005/gophjournal/internal/client/syncqueue"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/google/uuid"
)

const previewRunes = 40

type JournalService interface {
	Save(ctx context.Context, date, content string) (models.LocalEntry, error)
	Read(ctx context.Context, date string) (models.Entry, error)
	List(ctx context.Context) ([]models.ViewOverview, error)
	Delete(ctx context.Context, date string) error
	Sync(ctx context.Context) int
	Pending(ctx context.Context) int

	SaveSummary(ctx context.Context, from, to, text string) (models.SummaryView, error)
	Summaries(ctx context.Context) ([]models.SummaryView, error)
}

// Vault seals and opens journal content. Both calls fail with
// common.ErrVaultLocked unless the vault is unlocked.
type Vault interface {
	EncryptForStorage(plaintext []byte) (*cryptox.CiphertextEntry, error)
	DecryptFromStorage(entry *cryptox.CiphertextEntry) ([]byte, error)
	UserID() string
}

// JournalClient reads journal rows from the server. Writes go through the
// queue.
type JournalClient interface {
	ListEntries(ctx context.Context) ([]models.RemoteEntry, error)
	GetEntry(ctx context.Context, date string) (*models.RemoteEntry, error)
}

type LimitsSource interface {
	Get(ctx context.Context) models.Limits
}

type WriteQueue interface {
	Enqueue(ctx context.Context, method, url string, body any) error
	Pending(ctx context.Context, url string) (syncqueue.Item, bool)
	Flush(ctx context.Context) int
	Len(ctx context.Context) int
}

type journalService struct {
	vault  Vault
	client JournalClient
	cache  *entrycache.Cache
	queue  WriteQueue
	limits LimitsSource
	store  Store
	logger logging.Logger
	now    func() time.Time
}

func NewJournalService(v Vault, client JournalClient, cache *entrycache.Cache, queue WriteQueue,
	limits LimitsSource, store Store, logger logging.Logger) JournalService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &journalService{
		vault: v, client: client, cache: cache, queue: queue,
		limits: limits, store: store, logger: logger, now: time.Now,
	}
}

// ValidateDate accepts only canonical YYYY-MM-DD dates.
func ValidateDate(date string) error {
	t, err := time.Parse(common.DateLayout, date)
	if err != nil || t.Format(common.DateLayout) != date {
		return fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", common.ErrInvalidInput, date)
	}
	return nil
}

func (s *journalService) Save(ctx context.Context, date, content string) (models.LocalEntry, error) {
	if err := ValidateDate(date); err != nil {
		return models.LocalEntry{}, err
	}
	if strings.TrimSpace(content) == "" {
		return models.LocalEntry{}, fmt.Errorf("%w: empty entry", common.ErrInvalidInput)
	}
	if limit := s.limits.Get(ctx).MaxEntryBytes; limit > 0 && len(content) > limit {
		return models.LocalEntry{}, fmt.Errorf("%w: entry is %d bytes, limit is %d", common.ErrInvalidInput, len(content), limit)
	}

	ct, err := s.vault.EncryptForStorage([]byte(content))
	if err != nil {
		return models.LocalEntry{}, fmt.Errorf("encryption error: %w", err)
	}

	saved, err := s.cache.Upsert(ctx, models.LocalEntry{
		Date:          date,
		ContentCipher: ct.CipherB64,
		IV:            ct.IVB64,
		Version:       ct.Version,
		UpdatedAt:     s.now().UTC(),
	})
	if err != nil {
		return models.LocalEntry{}, fmt.Errorf("saving error: %w", err)
	}

	if err := s.queue.Enqueue(ctx, http.MethodPut, remote.EntryPath(date), saved.ToRemote()); err != nil {
		return models.LocalEntry{}, fmt.Errorf("queue error: %w", err)
	}
	s.queue.Flush(ctx)
	return saved, nil
}

// pendingDelete reports whether a delete of date is waiting to be sent.
func (s *journalService) pendingDelete(ctx context.Context, date string) bool {
	item, ok := s.queue.Pending(ctx, remote.EntryPath(date))
	return ok && item.Method == http.MethodDelete
}

// pendingUpload reports whether a put of date is waiting to be sent.
func (s *journalService) pendingUpload(ctx context.Context, date string) bool {
	item, ok := s.queue.Pending(ctx, remote.EntryPath(date))
	return ok && item.Method == http.MethodPut
}

// remoteOptional turns "server unreachable" into "no server data".
func (s *journalService) remoteOptional(ctx context.Context, op string, err error) error {
	if err == nil || errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if remote.IsUnavailable(err) {
		s.logger.Debug(ctx, "using local cache", "op", op, "error", err)
		return nil
	}
	return err
}

func (s *journalService) Read(ctx context.Context, date string) (models.Entry, error) {
	if err := ValidateDate(date); err != nil {
		return models.Entry{}, err
	}
	if s.pendingDelete(ctx, date) {
		return models.Entry{}, common.ErrorNotFound
	}

	row, err := s.client.GetEntry(ctx, date)
	if errors.Is(err, common.ErrorNotFound) && !s.pendingUpload(ctx, date) {
		if err := s.cache.Delete(ctx, date); err != nil {
			s.logger.Warn(ctx, "cache cleanup failed", "date", date, "error", err)
		}
		return models.Entry{}, common.ErrorNotFound
	}
	if err := s.remoteOptional(ctx, "read", err); err != nil {
		return models.Entry{}, fmt.Errorf("error retrieving entry: %w", err)
	}

	var local *models.LocalEntry
	if e, ok := s.cache.Get(ctx, date); ok {
		local = &e
	}

	winner, remoteWon, ok := entrycache.Reconcile(local, row)
	if !ok {
		return models.Entry{}, common.ErrorNotFound
	}

	plaintext, err := s.vault.DecryptFromStorage(winner.Ciphertext())
	if err != nil {
		return models.Entry{}, fmt.Errorf("error decrypting entry %s: %w", date, err)
	}

	if remoteWon {
		if _, err := s.cache.Upsert(ctx, winner); err != nil {
			s.logger.Warn(ctx, "cache refresh failed", "date", date, "error", err)
		}
	}

	return models.Entry{Date: date, Content: string(plaintext), UpdatedAt: winner.UpdatedAt}, nil
}

func (s *journalService) List(ctx context.Context) ([]models.ViewOverview, error) {
	rows, err := s.client.ListEntries(ctx)
	online := err == nil
	if err := s.remoteOptional(ctx, "list", err); err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}

	var merged []models.LocalEntry
	if online {
		live := rows[:0]
		for _, r := range rows {
			if !s.pendingDelete(ctx, r.Date) {
				live = append(live, r)
			}
		}
		merged, err = s.cache.Merge(ctx, live, func(date string) bool { return s.pendingUpload(ctx, date) })
		if err != nil {
			return nil, fmt.Errorf("error: %w", err)
		}
	} else {
		merged = s.cache.List(ctx)
	}

	result := make([]models.ViewOverview, 0, len(merged))
	for _, e := range merged {
		item, ok := s.queue.Pending(ctx, remote.EntryPath(e.Date))
		if ok && item.Method == http.MethodDelete {
			continue
		}

		plaintext, err := s.vault.DecryptFromStorage(e.Ciphertext())
		if err != nil {
			if errors.Is(err, common.ErrCorruptedEntry) {
				s.logger.Warn(ctx, "skipping corrupted entry", "date", e.Date, "error", err)
				continue
			}
			return nil, err
		}

		result = append(result, models.ViewOverview{
			Date:      e.Date,
			Preview:   preview(string(plaintext)),
			UpdatedAt: e.UpdatedAt,
			Pending:   ok,
		})
	}
	return result, nil
}

func preview(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) <= previewRunes {
		return line
	}
	r := []rune(line)
	return string(r[:previewRunes]) + "..."
}

func (s *journalService) Delete(ctx context.Context, date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, date); err != nil {
		return fmt.Errorf("error deleting entry: %w", err)
	}
	if err := s.queue.Enqueue(ctx, http.MethodDelete, remote.EntryPath(date), nil); err != nil {
		return fmt.Errorf("queue error: %w", err)
	}
	s.queue.Flush(ctx)
	return nil
}

// Sync replays queued writes and returns how many the server confirmed.
func (s *journalService) Sync(ctx context.Context) int {
	return s.queue.Flush(ctx)
}

func (s *journalService) Pending(ctx context.Context) int {
	return s.queue.Len(ctx)
}

func (s *journalService) summaryKey() (string, error) {
	userID := s.vault.UserID()
	if userID == "" {
		return "", common.ErrUnauthenticated
	}
	return common.UserKey(common.SummaryPrefix, userID), nil
}

// SaveSummary stores an encrypted summary of the days from..to. The history
// keeps the newest MaxSummaryHistory items.
func (s *journalService) SaveSummary(ctx context.Context, from, to, text string) (models.SummaryView, error) {
	if err := ValidateDate(from); err != nil {
		return models.SummaryView{}, err
	}
	if err := ValidateDate(to); err != nil {
		return models.SummaryView{}, err
	}
	if from > to {
		return models.SummaryView{}, fmt.Errorf("%w: %s is after %s", common.ErrInvalidInput, from, to)
	}
	if strings.TrimSpace(text) == "" {
		return models.SummaryView{}, fmt.Errorf("%w: empty summary", common.ErrInvalidInput)
	}
	key, err := s.summaryKey()
	if err != nil {
		return models.SummaryView{}, err
	}

	ct, err := s.vault.EncryptForStorage([]byte(text))
	if err != nil {
		return models.SummaryView{}, fmt.Errorf("encryption error: %w", err)
	}

	sum := models.Summary{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		CipherB64: ct.CipherB64,
		IVB64:     ct.IVB64,
		Version:   ct.Version,
		CreatedAt: s.now().UTC(),
	}

	var history []models.Summary
	s.store.GetJSON(ctx, key, &history)
	history = append([]models.Summary{sum}, history...)
	if limit := s.limits.Get(ctx).MaxSummaryHistory; limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	if err := s.store.SetJSON(ctx, key, history); err != nil {
		return models.SummaryView{}, fmt.Errorf("saving error: %w", err)
	}

	return models.SummaryView{ID: sum.ID, From: from, To: to, Text: text, CreatedAt: sum.CreatedAt}, nil
}

// Summaries returns the decrypted history, newest first. Corrupted items are
// skipped.
func (s *journalService) Summaries(ctx context.Context) ([]models.SummaryView, error) {
	key, err := s.summaryKey()
	if err != nil {
		return nil, err
	}

	var history []models.Summary
	s.store.GetJSON(ctx, key, &history)

	result := make([]models.SummaryView, 0, len(history))
	for _, h := range history {
		ct := &cryptox.CiphertextEntry{CipherB64: h.CipherB64, IVB64: h.IVB64, Version: h.Version}
		plaintext, err := s.vault.DecryptFromStorage(ct)
		if err != nil {
			if errors.Is(err, common.ErrCorruptedEntry) {
				s.logger.Warn(ctx, "skipping corrupted summary", "id", h.ID, "error", err)
				continue
			}
			return nil, err
		}
		result = append(result, models.SummaryView{
			ID: h.ID, From: h.From, To: h.To, Text: string(plaintext), CreatedAt: h.CreatedAt,
		})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
