package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophjournal/internal/dbx"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/bundles"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/journal"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them either on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Bundles(db dbx.DBTX) bundles.Repository
	Journal(db dbx.DBTX) journal.Repository
}
