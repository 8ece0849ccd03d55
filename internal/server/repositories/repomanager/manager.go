package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/classes"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/files"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/uploads"
)

// RepositoryManager vends repositories bound to a DBTX, so callers can use
// the same factories against the connection pool or a transaction handle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Classes(db dbx.DBTX) classes.Repository
	Uploads(db dbx.DBTX) uploads.Repository
	Files(db dbx.DBTX) files.Repository
}
