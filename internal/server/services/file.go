package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	sc "github.com/lockboxd/lockbox/internal/server/config"
	"github.com/lockboxd/lockbox/internal/server/models"
	"github.com/lockboxd/lockbox/internal/server/repositories/repomanager"
)

// UploadGrant is handed to the client after InitiateUpload: where to PUT
// the ciphertext and which file row it belongs to.
type UploadGrant struct {
	File *models.File
	URL  string
}

// DownloadGrant pairs the resolved key material with a time-limited URL
// for the ciphertext, plus the content nonce the client needs to decrypt.
type DownloadGrant struct {
	Path  *AccessPath
	URL   string
	Nonce []byte
}

// StorageUsage reports quota accounting for one user.
type StorageUsage struct {
	// Used is the total size of active (non-trashed) files.
	Used int64
	// Limit is the user's configured or default size limit.
	Limit int64
}

// FileService handles the upload/download boundary and quota accounting.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	access      *AccessService
	blobs       BlobStore
	config      *sc.Config
}

func NewFileService(db *sql.DB, rm repomanager.RepositoryManager, access *AccessService, blobs BlobStore, cfg *sc.Config) *FileService {
	return &FileService{db: db, repomanager: rm, access: access, blobs: blobs, config: cfg}
}

// quotaFor returns the user's quota settings, falling back to configured
// defaults when no explicit row exists.
func (s *FileService) quotaFor(ctx context.Context, userID string) (*models.QuotaSettings, error) {
	q, err := s.repomanager.Quotas(s.db).Get(ctx, userID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return &models.QuotaSettings{
		UserID:        userID,
		SizeLimit:     s.config.DefaultQuotaBytes,
		RetentionDays: s.config.DefaultRetentionDays,
	}, nil
}

// InitiateUpload checks quota, then allocates a storage key with a
// presigned PUT URL and records a pending file row. The quota check comes
// first: a rejected upload must leave no row and no key material behind.
func (s *FileService) InitiateUpload(ctx context.Context, ownerID, name string, size int64) (*UploadGrant, error) {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, ownerID); err != nil {
		return nil, err
	}

	quota, err := s.quotaFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	// the check and the insert below are not serialized, so concurrent
	// uploads can overshoot the limit by at most their in-flight sizes;
	// the quota is a soft cap, not an accounting invariant
	used, err := s.repomanager.Files(s.db).SumActiveSize(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if used+size > quota.SizeLimit {
		return nil, common.ErrorQuotaExceeded
	}

	storageKey, url, err := s.blobs.PresignPut(ctx)
	if err != nil {
		return nil, err
	}

	file := &models.File{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         name,
		Size:         size,
		StorageKey:   storageKey,
		UploadStatus: models.UploadPending,
		State:        models.StateActive,
	}
	if err := s.repomanager.Files(s.db).Create(ctx, file); err != nil {
		return nil, err
	}

	return &UploadGrant{File: file, URL: url}, nil
}

// CompleteUpload marks the blob uploaded and writes the owner's structural
// grant — the content key sealed to the owner's own public key — in one
// transaction. From here on the owner's access resolves like anyone
// else's.
func (s *FileService) CompleteUpload(ctx context.Context, fileID, ownerID string, sealedOwnerKey, contentNonce []byte) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != ownerID {
		return common.ErrorForbidden
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).MarkUploaded(ctx, fileID, contentNonce); err != nil {
			return err
		}
		return s.repomanager.FileKeys(tx).Create(ctx, &models.FileKey{
			FileID:      fileID,
			RecipientID: ownerID,
			SealedKey:   sealedOwnerKey,
			GrantedBy:   ownerID,
		})
	})
}

// GetDownloadGrant resolves the requester's access path and, when access
// exists, issues a presigned GET URL for the ciphertext.
func (s *FileService) GetDownloadGrant(ctx context.Context, fileID, requesterID string) (*DownloadGrant, error) {
	path, err := s.access.ResolveFileAccess(ctx, fileID, requesterID)
	if err != nil {
		return nil, err
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.PresignGet(ctx, file.StorageKey)
	if err != nil {
		return nil, err
	}

	return &DownloadGrant{Path: path, URL: url, Nonce: file.Nonce}, nil
}

// GetStorageUsage returns current usage against the user's limit. Trashed
// files do not count: they stay in the blob store until purge but exert no
// quota pressure.
func (s *FileService) GetStorageUsage(ctx context.Context, userID string) (*StorageUsage, error) {
	quota, err := s.quotaFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.repomanager.Files(s.db).SumActiveSize(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StorageUsage{Used: used, Limit: quota.SizeLimit}, nil
}

// SetQuota stores explicit per-user quota settings.
func (s *FileService) SetQuota(ctx context.Context, settings *models.QuotaSettings) error {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, settings.UserID); err != nil {
		return err
	}
	return s.repomanager.Quotas(s.db).Upsert(ctx, settings)
}
