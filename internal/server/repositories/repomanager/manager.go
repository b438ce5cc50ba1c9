// Package repomanager hands out repository instances bound to a DBTX, so
// services can use the same repositories inside and outside transactions.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/repositories/filekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/files"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderfilekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderkeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folders"
	"github.com/lockboxd/lockbox/internal/server/repositories/quotas"
	"github.com/lockboxd/lockbox/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Files(db dbx.DBTX) files.Repository
	Folders(db dbx.DBTX) folders.Repository
	FileKeys(db dbx.DBTX) filekeys.Repository
	FolderKeys(db dbx.DBTX) folderkeys.Repository
	FolderFileKeys(db dbx.DBTX) folderfilekeys.Repository
	Quotas(db dbx.DBTX) quotas.Repository
}
