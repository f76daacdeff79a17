package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/dbx"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/bundles"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/journal"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	mu      sync.Mutex
	byName  map[string]*models.User
	failErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	if _, ok := f.byName[u.UserName]; ok {
		return nil, common.ErrAlreadyExists
	}
	u.ID = "id-" + u.UserName
	f.byName[u.UserName] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByUsername(_ context.Context, name string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	u, ok := f.byName[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeBundleRepo struct {
	mu    sync.Mutex
	items map[string]*cryptox.WrappedBundle
}

func (f *fakeBundleRepo) Get(_ context.Context, userID string) (*cryptox.WrappedBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return b, nil
}

func (f *fakeBundleRepo) Put(_ context.Context, userID string, b *cryptox.WrappedBundle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[userID] = b
	return nil
}

func (f *fakeBundleRepo) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, userID)
	return nil
}

type fakeJournalRepo struct {
	mu   sync.Mutex
	rows map[string]models.JournalRow
}

func journalKey(userID, date string) string { return userID + "|" + date }

func (f *fakeJournalRepo) List(_ context.Context, userID string) ([]models.JournalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.JournalRow, 0)
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeJournalRepo) Get(_ context.Context, userID, date string) (*models.JournalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[journalKey(userID, date)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f *fakeJournalRepo) Upsert(_ context.Context, row *models.JournalRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := journalKey(row.UserID, row.Date)
	if cur, ok := f.rows[k]; ok && cur.UpdatedAt.After(row.UpdatedAt) {
		return common.ErrVersionConflict
	}
	f.rows[k] = *row
	return nil
}

func (f *fakeJournalRepo) Delete(_ context.Context, userID, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, journalKey(userID, date))
	return nil
}

type fakeRepoManager struct {
	users   *fakeUsersRepo
	bundles *fakeBundleRepo
	journal *fakeJournalRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:   &fakeUsersRepo{byName: map[string]*models.User{}},
		bundles: &fakeBundleRepo{items: map[string]*cryptox.WrappedBundle{}},
		journal: &fakeJournalRepo{rows: map[string]models.JournalRow{}},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *fakeRepoManager) Bundles(dbx.DBTX) bundles.Repository          { return m.bundles }
func (m *fakeRepoManager) Journal(dbx.DBTX) journal.Repository          { return m.journal }
