package folderfilekeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
)

// PostgresRepository implements folder-scoped file key storage over a
// dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.FolderFileKey) error {
	query := `
		INSERT INTO folder_file_keys (file_id, folder_id, wrapped_key, nonce)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.FileID, key.FolderID, key.WrappedKey, key.Nonce).Scan(&key.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, fileID, folderID string) (*models.FolderFileKey, error) {
	query := `
		SELECT file_id, folder_id, wrapped_key, nonce, created_at
		FROM folder_file_keys WHERE file_id = $1 AND folder_id = $2
	`
	k := &models.FolderFileKey{}
	err := r.db.QueryRowContext(ctx, query, fileID, folderID).
		Scan(&k.FileID, &k.FolderID, &k.WrappedKey, &k.Nonce, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID, folderID string) error {
	query := `DELETE FROM folder_file_keys WHERE file_id = $1 AND folder_id = $2`
	result, err := r.db.ExecContext(ctx, query, fileID, folderID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) error {
	query := `DELETE FROM folder_file_keys WHERE file_id = $1`
	if _, err := r.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByFolder(ctx context.Context, folderID string) error {
	query := `DELETE FROM folder_file_keys WHERE folder_id = $1`
	if _, err := r.db.ExecContext(ctx, query, folderID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
