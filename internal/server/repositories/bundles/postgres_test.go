package bundles

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() *cryptox.WrappedBundle {
	return &cryptox.WrappedBundle{WrappedKeyB64: "d3JhcHBlZA==", IVB64: "aXY=", SaltB64: "c2FsdA==", Version: 1}
}

func newPG(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgres_Get(t *testing.T) {
	repo, mock := newPG(t)
	want := sampleBundle()

	mock.ExpectQuery(`(?s)^SELECT\s+wrapped_b64,\s*iv_b64,\s*salt_b64,\s*version\s+FROM\s+vault_bundles\s+WHERE\s+user_id\s*=\s*\$1$`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"wrapped_b64", "iv_b64", "salt_b64", "version"}).
			AddRow(want.WrappedKeyB64, want.IVB64, want.SaltB64, want.Version))

	got, err := repo.Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetMissing(t *testing.T) {
	repo, mock := newPG(t)
	mock.ExpectQuery(`SELECT .* FROM vault_bundles`).WithArgs("u-1").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "u-1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgres_Put(t *testing.T) {
	repo, mock := newPG(t)
	b := sampleBundle()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+vault_bundles.*ON\s+CONFLICT\s+\(user_id\)\s+DO\s+UPDATE`).
		WithArgs("u-1", b.WrappedKeyB64, b.IVB64, b.SaltB64, b.Version).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), "u-1", b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutError(t *testing.T) {
	repo, mock := newPG(t)
	mock.ExpectExec(`INSERT INTO vault_bundles`).WillReturnError(errors.New("boom"))

	err := repo.Put(context.Background(), "u-1", sampleBundle())
	assert.ErrorContains(t, err, "db error: boom")
}

func TestPostgres_Delete(t *testing.T) {
	repo, mock := newPG(t)
	mock.ExpectExec(`^DELETE FROM vault_bundles WHERE user_id = \$1$`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
