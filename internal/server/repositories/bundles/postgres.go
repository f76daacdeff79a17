package bundles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*cryptox.WrappedBundle, error) {
	query :=
		`SELECT wrapped_b64, iv_b64, salt_b64, version FROM vault_bundles
		 WHERE user_id = $1`

	b := &cryptox.WrappedBundle{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&b.WrappedKeyB64, &b.IVB64, &b.SaltB64, &b.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) Put(ctx context.Context, userID string, b *cryptox.WrappedBundle) error {
	query := `
		INSERT INTO vault_bundles (user_id, wrapped_b64, iv_b64, salt_b64, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id)
		DO UPDATE SET
			wrapped_b64 = EXCLUDED.wrapped_b64,
			iv_b64 = EXCLUDED.iv_b64,
			salt_b64 = EXCLUDED.salt_b64,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, b.WrappedKeyB64, b.IVB64, b.SaltB64, b.Version); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vault_bundles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
