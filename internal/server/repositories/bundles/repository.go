// Package bundles stores one wrapped vault bundle per user, either in
// PostgreSQL or as JSON objects in an S3-compatible bucket.
package bundles

import (
	"context"

	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
)

// Repository is the per-user bundle store. Get reports a missing bundle as
// common.ErrorNotFound; Delete of a missing bundle is not an error.
type Repository interface {
	Get(ctx context.Context, userID string) (*cryptox.WrappedBundle, error)
	Put(ctx context.Context, userID string, b *cryptox.WrappedBundle) error
	Delete(ctx context.Context, userID string) error
}
