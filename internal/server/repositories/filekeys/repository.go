// Package filekeys is the file half of the access ledger: one row per
// (file, recipient) holding the content key sealed to that recipient.
package filekeys

import (
	"context"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	// Create inserts a grant row. Returns common.ErrorConflict when a row
	// already exists for the (file, recipient) pair — re-sharing requires
	// an explicit revoke first.
	Create(ctx context.Context, key *models.FileKey) error
	// Get returns the grant or common.ErrorNotFound.
	Get(ctx context.Context, fileID, recipientID string) (*models.FileKey, error)
	// Delete removes exactly one grant row; common.ErrorNotFound when
	// there is nothing to revoke.
	Delete(ctx context.Context, fileID, recipientID string) error
	// DeleteByFile removes every grant for the file (purge path).
	DeleteByFile(ctx context.Context, fileID string) error
	// ListByFile returns all grants on the file.
	ListByFile(ctx context.Context, fileID string) ([]*models.FileKey, error)
}
