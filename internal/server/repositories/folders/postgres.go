package folders

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

const folderColumns = `id, owner_id, name, parent_id, state, deleted_at, deleted_by, scheduled_purge_at, created_at`

// PostgresRepository implements folder storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanFolder(row interface{ Scan(dest ...any) error }) (*models.Folder, error) {
	f := &models.Folder{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentID, &f.State,
		&f.DeletedAt, &f.DeletedBy, &f.ScheduledPurgeAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := `
		INSERT INTO folders (id, owner_id, name, parent_id, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		folder.ID, folder.OwnerID, folder.Name, folder.ParentID, folder.State).
		Scan(&folder.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE id = $1`
	f, err := scanFolder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) SetParent(ctx context.Context, id string, parentID *string) error {
	query := `UPDATE folders SET parent_id = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, parentID)
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

func (r *PostgresRepository) DetachChildren(ctx context.Context, parentID string) error {
	query := `UPDATE folders SET parent_id = NULL WHERE parent_id = $1`
	if _, err := r.db.ExecContext(ctx, query, parentID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsAncestor(ctx context.Context, folderID, candidateID string) (bool, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id, f.parent_id FROM folders f
			JOIN chain c ON f.id = c.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)
	`
	var found bool
	if err := r.db.QueryRowContext(ctx, query, folderID, candidateID).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}

func (r *PostgresRepository) Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error {
	query := `
		UPDATE folders SET state = 'trashed', deleted_at = $2, deleted_by = $3, scheduled_purge_at = $4
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

func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE folders SET state = 'active', deleted_at = NULL, deleted_by = NULL, scheduled_purge_at = NULL
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

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	query := `DELETE FROM folders WHERE id = $1 AND state = 'trashed'`
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

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders
		WHERE state = 'trashed' AND scheduled_purge_at IS NOT NULL AND scheduled_purge_at <= $1`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
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
