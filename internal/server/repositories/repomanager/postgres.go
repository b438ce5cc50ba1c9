package repomanager

import (
	"context"
	"database/sql"

	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/migrations"
	"github.com/lockboxd/lockbox/internal/server/repositories/filekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/files"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderfilekeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folderkeys"
	"github.com/lockboxd/lockbox/internal/server/repositories/folders"
	"github.com/lockboxd/lockbox/internal/server/repositories/quotas"
	"github.com/lockboxd/lockbox/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Folders(db dbx.DBTX) folders.Repository {
	return folders.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FileKeys(db dbx.DBTX) filekeys.Repository {
	return filekeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FolderKeys(db dbx.DBTX) folderkeys.Repository {
	return folderkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) FolderFileKeys(db dbx.DBTX) folderfilekeys.Repository {
	return folderfilekeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Quotas(db dbx.DBTX) quotas.Repository {
	return quotas.NewPostgresRepository(db)
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
