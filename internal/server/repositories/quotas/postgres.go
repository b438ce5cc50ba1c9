package quotas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
)

// PostgresRepository implements quota settings storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.QuotaSettings, error) {
	query := `SELECT user_id, size_limit, retention_days FROM user_quotas WHERE user_id = $1`
	s := &models.QuotaSettings{}
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&s.UserID, &s.SizeLimit, &s.RetentionDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, settings *models.QuotaSettings) error {
	query := `
		INSERT INTO user_quotas (user_id, size_limit, retention_days)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET size_limit = EXCLUDED.size_limit, retention_days = EXCLUDED.retention_days
	`
	if _, err := r.db.ExecContext(ctx, query, settings.UserID, settings.SizeLimit, settings.RetentionDays); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
