package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/radsync/internal/dbx"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/entities"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/operations"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/radsync/internal/server/repositories/usage"
)

// RepositoryManager binds repositories to a DBTX so services can run them
// either on the pool or inside a dbx.WithTx callback.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Entities(db dbx.DBTX) entities.Repository
	Operations(db dbx.DBTX) operations.Repository
	Preferences(db dbx.DBTX) preferences.Repository
	Usage(db dbx.DBTX) usage.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
