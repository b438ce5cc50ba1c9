// Package files stores content-object metadata: placement, lifecycle state
// and quota-relevant size. Key material lives in the ledger packages.
package files

import (
	"context"
	"time"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	// MarkUploaded flips upload_status to completed and records the
	// content nonce. Exactly one row must match.
	MarkUploaded(ctx context.Context, id string, nonce []byte) error
	// SetFolder updates folder placement; nil clears it.
	SetFolder(ctx context.Context, id string, folderID *string) error
	// ListByFolder returns all files currently placed in the folder.
	ListByFolder(ctx context.Context, folderID string) ([]*models.File, error)

	// Trash moves an active file to the trash. Conditional on
	// state='active'; returns common.ErrorInvalidState when no row matches.
	Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error
	// TrashByFolder cascades a folder soft-delete onto its active files
	// and returns the ids of the files it moved.
	TrashByFolder(ctx context.Context, folderID, byUser string, at time.Time, purgeAt *time.Time) ([]string, error)
	// Restore moves a trashed file back to active. Conditional on
	// state='trashed'; returns common.ErrorInvalidState when no row matches.
	Restore(ctx context.Context, id string) error
	// RestoreByFolder restores every still-trashed file in the folder.
	RestoreByFolder(ctx context.Context, folderID string) ([]string, error)
	// Delete removes a trashed file row (compare-and-delete). Returns the
	// number of rows deleted; 0 means a concurrent restore won.
	Delete(ctx context.Context, id string) (int64, error)

	// SumActiveSize returns the quota usage of the owner: total size of
	// active (non-trashed) files.
	SumActiveSize(ctx context.Context, ownerID string) (int64, error)
	// ListExpired returns trashed files whose scheduled purge time has
	// elapsed.
	ListExpired(ctx context.Context, now time.Time) ([]*models.File, error)
	// ListAccessible returns files reachable by the user via a direct
	// grant or via membership of the containing folder.
	ListAccessible(ctx context.Context, userID string) ([]*models.File, error)
}
