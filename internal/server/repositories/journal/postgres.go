// Package journal provides the PostgreSQL repository of encrypted journal
// rows, keyed by (user, date).
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/dbx"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
)

// PostgresRepository implements journal storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns every row of userID ordered by date.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]models.JournalRow, error) {
	query := `
		SELECT entry_date, cipher_b64, iv_b64, version, updated_at FROM journal_entries
		WHERE user_id = $1
		ORDER BY entry_date`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	result := make([]models.JournalRow, 0)
	for rows.Next() {
		item := models.JournalRow{UserID: userID}
		if err := rows.Scan(&item.Date, &item.CipherB64, &item.IVB64, &item.Version, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, date string) (*models.JournalRow, error) {
	query := `
		SELECT cipher_b64, iv_b64, version, updated_at FROM journal_entries
		WHERE user_id = $1 AND entry_date = $2`

	item := &models.JournalRow{UserID: userID, Date: date}
	err := r.db.QueryRowContext(ctx, query, userID, date).
		Scan(&item.CipherB64, &item.IVB64, &item.Version, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// Upsert writes row unless the stored copy is strictly newer, in which case
// nothing changes and common.ErrVersionConflict is returned.
func (r *PostgresRepository) Upsert(ctx context.Context, row *models.JournalRow) error {
	query := `
		INSERT INTO journal_entries (user_id, entry_date, cipher_b64, iv_b64, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, entry_date)
		DO UPDATE SET
			cipher_b64 = EXCLUDED.cipher_b64,
			iv_b64 = EXCLUDED.iv_b64,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
			WHERE journal_entries.updated_at <= EXCLUDED.updated_at`

	res, err := r.db.ExecContext(ctx, query,
		row.UserID, row.Date, row.CipherB64, row.IVB64, row.Version, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, date string) error {
	query := `DELETE FROM journal_entries WHERE user_id = $1 AND entry_date = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, date); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
