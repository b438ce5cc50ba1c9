// Package folderkeys is the folder half of the access ledger: one row per
// (folder, recipient) holding the folder key sealed to that recipient.
package folderkeys

import (
	"context"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	// Create inserts a membership row; common.ErrorConflict on duplicate.
	Create(ctx context.Context, key *models.FolderKey) error
	// Get returns the membership or common.ErrorNotFound.
	Get(ctx context.Context, folderID, recipientID string) (*models.FolderKey, error)
	// Delete removes exactly one membership row; common.ErrorNotFound
	// when there is nothing to revoke. The folder key is not rotated.
	Delete(ctx context.Context, folderID, recipientID string) error
	// DeleteByFolder removes every membership for the folder (purge path).
	DeleteByFolder(ctx context.Context, folderID string) error
}
