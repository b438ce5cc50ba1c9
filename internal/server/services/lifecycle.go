package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/logging"
	sc "github.com/lockboxd/lockbox/internal/server/config"
	"github.com/lockboxd/lockbox/internal/server/repositories/repomanager"
)

// LifecycleService runs the trash state machine: soft-delete, restore,
// purge and the periodic purge sweep. It is the only component allowed to
// trigger storage reclaim.
type LifecycleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       BlobStore
	config      *sc.Config
	logger      logging.Logger

	// now is a seam for tests.
	now func() time.Time
}

func NewLifecycleService(db *sql.DB, rm repomanager.RepositoryManager, blobs BlobStore, cfg *sc.Config, logger logging.Logger) *LifecycleService {
	return &LifecycleService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		config:      cfg,
		logger:      logger.With("module", "lifecycle"),
		now:         time.Now,
	}
}

// purgeScheduleFor computes the scheduled purge time from the owner's
// retention window. Retention 0 means never auto-purge.
func (s *LifecycleService) purgeScheduleFor(ctx context.Context, ownerID string, at time.Time) (*time.Time, error) {
	retention := s.config.DefaultRetentionDays
	q, err := s.repomanager.Quotas(s.db).Get(ctx, ownerID)
	if err == nil {
		retention = q.RetentionDays
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if retention == 0 {
		return nil, nil
	}
	purgeAt := at.AddDate(0, 0, retention)
	return &purgeAt, nil
}

// SoftDeleteFile moves one active file to the trash. Owner only.
func (s *LifecycleService) SoftDeleteFile(ctx context.Context, fileID, byUser string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != byUser {
		return common.ErrorForbidden
	}

	at := s.now()
	purgeAt, err := s.purgeScheduleFor(ctx, file.OwnerID, at)
	if err != nil {
		return err
	}
	return s.repomanager.Files(s.db).Trash(ctx, fileID, byUser, at, purgeAt)
}

// SoftDeleteFolder trashes the folder and cascades onto its active files
// with the same schedule, atomically. Each file keeps its folder-scoped
// key wrap so a restore reunites the pair.
func (s *LifecycleService) SoftDeleteFolder(ctx context.Context, folderID, byUser string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != byUser {
		return common.ErrorForbidden
	}

	at := s.now()
	purgeAt, err := s.purgeScheduleFor(ctx, folder.OwnerID, at)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Folders(tx).Trash(ctx, folderID, byUser, at, purgeAt); err != nil {
			return err
		}
		_, err := s.repomanager.Files(tx).TrashByFolder(ctx, folderID, byUser, at, purgeAt)
		return err
	})
}

// RestoreFile brings a trashed file back. If its folder was purged in the
// meantime the stale placement is cleared; if the folder merely sits in
// the trash the placement stays, so restoring the folder later reunites
// them. Restoring a file never forces its folder to restore.
func (s *LifecycleService) RestoreFile(ctx context.Context, fileID, byUser string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if !file.Trashed() {
		return common.ErrorInvalidState
	}

	clearPlacement := false
	if file.FolderID != nil {
		_, err := s.repomanager.Folders(s.db).GetByID(ctx, *file.FolderID)
		if errors.Is(err, common.ErrorNotFound) {
			clearPlacement = true
		} else if err != nil {
			return err
		}
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Restore(ctx, fileID); err != nil {
			return err
		}
		if clearPlacement {
			if err := s.repomanager.FolderFileKeys(tx).DeleteByFile(ctx, fileID); err != nil {
				return err
			}
			return s.repomanager.Files(tx).SetFolder(ctx, fileID, nil)
		}
		return nil
	})
}

// RestoreFolder restores the folder and every one of its still-trashed
// files, atomically.
func (s *LifecycleService) RestoreFolder(ctx context.Context, folderID, byUser string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if !folder.Trashed() {
		return common.ErrorInvalidState
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Folders(tx).Restore(ctx, folderID); err != nil {
			return err
		}
		_, err := s.repomanager.Files(tx).RestoreByFolder(ctx, folderID)
		return err
	})
}

// PurgeFile irreversibly destroys a trashed file: its key-wrap rows, its
// registry row and finally its blob. Owner only.
func (s *LifecycleService) PurgeFile(ctx context.Context, fileID, byUser string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if !file.Trashed() {
		return common.ErrorInvalidState
	}

	if err := s.purgeFileRows(ctx, fileID); err != nil {
		return err
	}
	s.deleteBlob(ctx, file.StorageKey)
	return nil
}

// purgeFileRows deletes the file's ledger rows and, conditionally, the
// file row itself. The compare-and-delete on state='trashed' means a
// concurrent restore wins: the whole transaction rolls back and the caller
// sees ErrorInvalidState.
func (s *LifecycleService) purgeFileRows(ctx context.Context, fileID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.FileKeys(tx).DeleteByFile(ctx, fileID); err != nil {
			return err
		}
		if err := s.repomanager.FolderFileKeys(tx).DeleteByFile(ctx, fileID); err != nil {
			return err
		}
		n, err := s.repomanager.Files(tx).Delete(ctx, fileID)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrorInvalidState
		}
		return nil
	})
}

// PurgeFolder destroys a trashed folder: every still-trashed contained
// file is purged with it, regardless of that file's own schedule. A
// contained file that was individually restored survives with its
// placement cleared, mirroring the compare-and-delete race rule.
// Subfolders are detached to the root, never purged with the parent.
// Owner only.
func (s *LifecycleService) PurgeFolder(ctx context.Context, folderID, byUser string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if !folder.Trashed() {
		return common.ErrorInvalidState
	}
	return s.purgeFolderRows(ctx, folderID)
}

func (s *LifecycleService) purgeFolderRows(ctx context.Context, folderID string) error {
	var blobKeys []string

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		blobKeys = blobKeys[:0]

		contained, err := s.repomanager.Files(tx).ListByFolder(ctx, folderID)
		if err != nil {
			return err
		}
		for _, f := range contained {
			// compare-and-delete comes first: a concurrently restored
			// file must keep its grant rows
			n, err := s.repomanager.Files(tx).Delete(ctx, f.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				// restored concurrently: keep the file, orphan-proof it
				if err := s.repomanager.Files(tx).SetFolder(ctx, f.ID, nil); err != nil {
					return err
				}
				continue
			}
			if err := s.repomanager.FileKeys(tx).DeleteByFile(ctx, f.ID); err != nil {
				return err
			}
			if err := s.repomanager.FolderFileKeys(tx).DeleteByFile(ctx, f.ID); err != nil {
				return err
			}
			blobKeys = append(blobKeys, f.StorageKey)
		}

		if err := s.repomanager.FolderKeys(tx).DeleteByFolder(ctx, folderID); err != nil {
			return err
		}
		if err := s.repomanager.FolderFileKeys(tx).DeleteByFolder(ctx, folderID); err != nil {
			return err
		}

		// subfolders are not purged with their parent: they move to the
		// root and keep their own lifecycle state and schedule
		if err := s.repomanager.Folders(tx).DetachChildren(ctx, folderID); err != nil {
			return err
		}

		n, err := s.repomanager.Folders(tx).Delete(ctx, folderID)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrorInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range blobKeys {
		s.deleteBlob(ctx, key)
	}
	return nil
}

// deleteBlob reclaims a blob after the database rows are gone. Failures
// are logged, not returned: the key graph no longer references the blob,
// so a leaked object is an operator cleanup, not a correctness problem.
func (s *LifecycleService) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "blob delete failed", "storage_key", key, "error", err.Error())
	}
}

// SweepExpired purges every trashed object whose scheduled purge time has
// elapsed. Per-object failures are independent: they are logged and the
// sweep moves on. A sweep losing a race against a restore is a no-op for
// that object.
func (s *LifecycleService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	purged := 0

	expiredFolders, err := s.repomanager.Folders(s.db).ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, folder := range expiredFolders {
		if err := s.purgeFolderRows(ctx, folder.ID); err != nil {
			if !errors.Is(err, common.ErrorInvalidState) {
				s.logger.Error(ctx, "sweep: folder purge failed", "folder_id", folder.ID, "error", err.Error())
			}
			continue
		}
		purged++
	}

	expiredFiles, err := s.repomanager.Files(s.db).ListExpired(ctx, now)
	if err != nil {
		return purged, err
	}
	for _, file := range expiredFiles {
		if err := s.purgeFileRows(ctx, file.ID); err != nil {
			if !errors.Is(err, common.ErrorInvalidState) {
				s.logger.Error(ctx, "sweep: file purge failed", "file_id", file.ID, "error", err.Error())
			}
			continue
		}
		s.deleteBlob(ctx, file.StorageKey)
		purged++
	}

	return purged, nil
}
