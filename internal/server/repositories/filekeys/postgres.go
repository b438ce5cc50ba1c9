package filekeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
)

// PostgresRepository implements the file key ledger over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.FileKey) error {
	// the primary key on (file_id, recipient_id) serializes concurrent
	// grant attempts; the loser surfaces as a conflict
	query := `
		INSERT INTO file_keys (file_id, recipient_id, sealed_key, granted_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.FileID, key.RecipientID, key.SealedKey, key.GrantedBy).Scan(&key.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, fileID, recipientID string) (*models.FileKey, error) {
	query := `
		SELECT file_id, recipient_id, sealed_key, granted_by, created_at
		FROM file_keys WHERE file_id = $1 AND recipient_id = $2
	`
	k := &models.FileKey{}
	err := r.db.QueryRowContext(ctx, query, fileID, recipientID).
		Scan(&k.FileID, &k.RecipientID, &k.SealedKey, &k.GrantedBy, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID, recipientID string) error {
	query := `DELETE FROM file_keys WHERE file_id = $1 AND recipient_id = $2`
	result, err := r.db.ExecContext(ctx, query, fileID, recipientID)
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
	query := `DELETE FROM file_keys WHERE file_id = $1`
	if _, err := r.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.FileKey, error) {
	query := `
		SELECT file_id, recipient_id, sealed_key, granted_by, created_at
		FROM file_keys WHERE file_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileKey
	for rows.Next() {
		k := &models.FileKey{}
		if err := rows.Scan(&k.FileID, &k.RecipientID, &k.SealedKey, &k.GrantedBy, &k.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
