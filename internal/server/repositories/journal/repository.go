package journal

import (
	"context"

	"github.com/dmitrijs2005/gophjournal/internal/server/models"
)

type Repository interface {
	List(ctx context.Context, userID string) ([]models.JournalRow, error)
	Get(ctx context.Context, userID, date string) (*models.JournalRow, error)
	Upsert(ctx context.Context, row *models.JournalRow) error
	Delete(ctx context.Context, userID, date string) error
}
