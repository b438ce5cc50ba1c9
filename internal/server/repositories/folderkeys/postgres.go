package folderkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
)

// PostgresRepository implements the folder key ledger over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.FolderKey) error {
	query := `
		INSERT INTO folder_keys (folder_id, recipient_id, sealed_key, granted_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.FolderID, key.RecipientID, key.SealedKey, key.GrantedBy).Scan(&key.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, folderID, recipientID string) (*models.FolderKey, error) {
	query := `
		SELECT folder_id, recipient_id, sealed_key, granted_by, created_at
		FROM folder_keys WHERE folder_id = $1 AND recipient_id = $2
	`
	k := &models.FolderKey{}
	err := r.db.QueryRowContext(ctx, query, folderID, recipientID).
		Scan(&k.FolderID, &k.RecipientID, &k.SealedKey, &k.GrantedBy, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, folderID, recipientID string) error {
	query := `DELETE FROM folder_keys WHERE folder_id = $1 AND recipient_id = $2`
	result, err := r.db.ExecContext(ctx, query, folderID, recipientID)
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

func (r *PostgresRepository) DeleteByFolder(ctx context.Context, folderID string) error {
	query := `DELETE FROM folder_keys WHERE folder_id = $1`
	if _, err := r.db.ExecContext(ctx, query, folderID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
