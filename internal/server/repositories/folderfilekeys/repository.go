// Package folderfilekeys stores per-file content keys wrapped under a
// folder's symmetric key. A row exists exactly while the file is placed in
// the folder; it survives soft-delete so a restore can reunite the pair.
package folderfilekeys

import (
	"context"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	// Create inserts a placement wrap; common.ErrorConflict on duplicate.
	Create(ctx context.Context, key *models.FolderFileKey) error
	// Get returns the wrap or common.ErrorNotFound.
	Get(ctx context.Context, fileID, folderID string) (*models.FolderFileKey, error)
	// Delete removes the wrap for one (file, folder) pair.
	Delete(ctx context.Context, fileID, folderID string) error
	// DeleteByFile removes every wrap referencing the file.
	DeleteByFile(ctx context.Context, fileID string) error
	// DeleteByFolder removes every wrap referencing the folder.
	DeleteByFolder(ctx context.Context, folderID string) error
}
