// Package quotas stores per-user storage policy (size limit, trash
// retention). Absent rows fall back to configured defaults in the service
// layer.
package quotas

import (
	"context"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	// Get returns the user's quota settings or common.ErrorNotFound.
	Get(ctx context.Context, userID string) (*models.QuotaSettings, error)
	// Upsert creates or replaces the user's quota settings.
	Upsert(ctx context.Context, settings *models.QuotaSettings) error
}
