// Package folders stores folder metadata and parent/child placement.
package folders

import (
	"context"
	"time"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	// SetParent re-parents the folder; nil moves it to the root. Cycle
	// checking is the caller's job (IsAncestor).
	SetParent(ctx context.Context, id string, parentID *string) error
	// IsAncestor reports whether candidate appears on folder's parent
	// chain (or is the folder itself).
	IsAncestor(ctx context.Context, folderID, candidateID string) (bool, error)
	// DetachChildren moves every direct child of the folder to the root.
	DetachChildren(ctx context.Context, parentID string) error

	// Trash, Restore and Delete mirror the files repository: conditional
	// on the expected state so concurrent transitions serialize in the
	// database.
	Trash(ctx context.Context, id, byUser string, at time.Time, purgeAt *time.Time) error
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) (int64, error)

	ListExpired(ctx context.Context, now time.Time) ([]*models.Folder, error)
}
