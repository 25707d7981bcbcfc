// Package repomanager vends repositories bound to a DBTX so services can
// run them against the pool or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cipherbox/internal/dbx"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/files"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Files(db dbx.DBTX) files.Repository
	Audit(db dbx.DBTX) audit.Repository
}
