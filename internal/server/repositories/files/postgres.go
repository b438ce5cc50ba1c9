package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
)

const fileColumns = `id, owner_id, name, size, storage_key, nonce, folder_id, upload_status,
		state, deleted_at, deleted_by, scheduled_purge_at, created_at`

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanFile(row interface{ Scan(dest ...any) error }) (*models.File, error) {
	f := &models.File{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Size, &f.StorageKey, &f.Nonce,
		&f.FolderID, &f.UploadStatus, &f.State, &f.DeletedAt, &f.DeletedBy,
		&f.ScheduledPurgeAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, owner_id, name, size, storage_key, upload_status, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.OwnerID, file.Name, file.Size, file.StorageKey,
		file.UploadStatus, file.State).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string, nonce []byte) error {
	query := `UPDATE files SET upload_status = 'completed', nonce = $2 WHERE id = $1 AND upload_status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, nonce)
	if err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorInvalidState
	}
	return nil
}

func (r *PostgresRepository) SetFolder(ctx context.Context, id string, folderID *string) error {
	query := `UPDATE files SET folder_id = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, folderID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE folder_id = $1`
	return r.queryFiles(ctx, query, folderID)
}

func (r *PostgresRepository) Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error {
	query := `
		UPDATE files SET state = 'trashed', deleted_at = $2, deleted_by = $3, scheduled_purge_at = $4
		WHERE id = $1 AND state = 'active'
	`
	result, err := r.db.ExecContext(ctx, query, id, at, byUser, purgeAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorInvalidState
	}
	return nil
}

func (r *PostgresRepository) TrashByFolder(ctx context.Context, folderID, byUser string, at time.Time, purgeAt *time.Time) ([]string, error) {
	query := `
		UPDATE files SET state = 'trashed', deleted_at = $2, deleted_by = $3, scheduled_purge_at = $4
		WHERE folder_id = $1 AND state = 'active'
		RETURNING id
	`
	return r.queryIDs(ctx, query, folderID, at, byUser, purgeAt)
}

func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE files SET state = 'active', deleted_at = NULL, deleted_by = NULL, scheduled_purge_at = NULL
		WHERE id = $1 AND state = 'trashed'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorInvalidState
	}
	return nil
}

func (r *PostgresRepository) RestoreByFolder(ctx context.Context, folderID string) ([]string, error) {
	query := `
		UPDATE files SET state = 'active', deleted_at = NULL, deleted_by = NULL, scheduled_purge_at = NULL
		WHERE folder_id = $1 AND state = 'trashed'
		RETURNING id
	`
	return r.queryIDs(ctx, query, folderID)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	// compare-and-delete: only a still-trashed row may go away, so a
	// concurrent restore wins the race and the caller sees 0 rows
	query := `DELETE FROM files WHERE id = $1 AND state = 'trashed'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SumActiveSize(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM files WHERE owner_id = $1 AND state = 'active'`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE state = 'trashed' AND scheduled_purge_at IS NOT NULL AND scheduled_purge_at <= $1`
	return r.queryFiles(ctx, query, now)
}

func (r *PostgresRepository) ListAccessible(ctx context.Context, userID string) ([]*models.File, error) {
	// direct grants first, then folder membership; owners reach their own
	// files through the structural file_keys row like everyone else
	query := `
		SELECT DISTINCT f.id, f.owner_id, f.name, f.size, f.storage_key, f.nonce, f.folder_id, f.upload_status,
			f.state, f.deleted_at, f.deleted_by, f.scheduled_purge_at, f.created_at
		FROM files f
		LEFT JOIN file_keys fk ON fk.file_id = f.id AND fk.recipient_id = $1
		LEFT JOIN folder_keys gk ON gk.folder_id = f.folder_id AND gk.recipient_id = $1
		LEFT JOIN folder_file_keys ffk ON ffk.file_id = f.id AND ffk.folder_id = f.folder_id
		WHERE fk.recipient_id IS NOT NULL
			OR (gk.recipient_id IS NOT NULL AND ffk.file_id IS NOT NULL)
		ORDER BY f.created_at
	`
	return r.queryFiles(ctx, query, userID)
}

func (r *PostgresRepository) queryFiles(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
