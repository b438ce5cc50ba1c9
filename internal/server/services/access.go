package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/dbx"
	"github.com/lockboxd/lockbox/internal/server/models"
	"github.com/lockboxd/lockbox/internal/server/repositories/repomanager"
)

// AccessKind names the path through which a requester reaches a file.
type AccessKind string

const (
	// AccessDirect: the requester holds the content key sealed to their
	// own public key. Owners reach their files this way too.
	AccessDirect AccessKind = "direct"
	// AccessFolder: the requester holds the folder key sealed to them and
	// the content key wrapped under that folder key. Two unwraps.
	AccessFolder AccessKind = "folder"
)

// AccessPath carries the wrapped key material a requester needs to recover
// a content key. Exactly one of the two shapes is populated depending on
// Kind.
type AccessPath struct {
	Kind AccessKind

	// Direct share: content key sealed to the requester.
	SealedKey []byte

	// Folder share: the folder, the folder key sealed to the requester,
	// and the content key wrapped under the folder key.
	FolderID        string
	SealedFolderKey []byte
	WrappedFileKey  []byte
	WrapNonce       []byte
}

// ShareResult reports the outcome of one recipient in a bulk share.
type ShareResult struct {
	RecipientID string
	Err         error
}

// AccessService owns the access ledger: grants, revocations and resolution
// for files and folders.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewAccessService(db *sql.DB, rm repomanager.RepositoryManager) *AccessService {
	return &AccessService{db: db, repomanager: rm}
}

// requireRecipient checks the recipient exists and can be sealed to.
func (s *AccessService) requireRecipient(ctx context.Context, recipientID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if len(user.EncryptionPublicKey) == 0 {
		return nil, common.ErrorNoPublicKey
	}
	return user, nil
}

// ShareFile records a direct grant: the content key sealed to the
// recipient, produced client-side by the grantor. The grantor must hold
// access themselves; a duplicate grant is a conflict (revoke first, no
// silent overwrite).
func (s *AccessService) ShareFile(ctx context.Context, fileID, recipientID string, sealedKey []byte, grantedBy string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.Trashed() {
		return common.ErrorInvalidState
	}
	if _, err := s.requireRecipient(ctx, recipientID); err != nil {
		return err
	}
	if _, err := s.ResolveFileAccess(ctx, fileID, grantedBy); err != nil {
		return err
	}

	return s.repomanager.FileKeys(s.db).Create(ctx, &models.FileKey{
		FileID:      fileID,
		RecipientID: recipientID,
		SealedKey:   sealedKey,
		GrantedBy:   grantedBy,
	})
}

// SealedShare is one recipient's entry in a bulk share.
type SealedShare struct {
	RecipientID string
	SealedKey   []byte
}

// ShareFileBulk applies ShareFile per recipient, collecting per-recipient
// outcomes instead of aborting on the first failure.
func (s *AccessService) ShareFileBulk(ctx context.Context, fileID string, shares []SealedShare, grantedBy string) []ShareResult {
	results := make([]ShareResult, 0, len(shares))
	for _, share := range shares {
		err := s.ShareFile(ctx, fileID, share.RecipientID, share.SealedKey, grantedBy)
		results = append(results, ShareResult{RecipientID: share.RecipientID, Err: err})
	}
	return results
}

// RevokeFileAccess deletes exactly one grant row. Only the file's owner or
// the grant's original grantor may revoke, and the owner's structural row
// cannot be revoked at all.
func (s *AccessService) RevokeFileAccess(ctx context.Context, fileID, recipientID, revokedBy string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	grant, err := s.repomanager.FileKeys(s.db).Get(ctx, fileID, recipientID)
	if err != nil {
		return err
	}

	if recipientID == file.OwnerID {
		return common.ErrorForbidden
	}
	if revokedBy != file.OwnerID && revokedBy != grant.GrantedBy {
		return common.ErrorForbidden
	}

	return s.repomanager.FileKeys(s.db).Delete(ctx, fileID, recipientID)
}

// ResolveFileAccess determines whether requester can decrypt the file and
// through which path. Order matters: a direct grant wins over folder
// membership so the caller does at most one asymmetric open. Ownership is
// not a separate branch — the owner's structural grant rides path one.
func (s *AccessService) ResolveFileAccess(ctx context.Context, fileID, requesterID string) (*AccessPath, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	grant, err := s.repomanager.FileKeys(s.db).Get(ctx, fileID, requesterID)
	if err == nil {
		return &AccessPath{Kind: AccessDirect, SealedKey: grant.SealedKey}, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if file.FolderID != nil {
		folderGrant, err := s.repomanager.FolderKeys(s.db).Get(ctx, *file.FolderID, requesterID)
		if err == nil {
			wrap, err := s.repomanager.FolderFileKeys(s.db).Get(ctx, fileID, *file.FolderID)
			if err == nil {
				return &AccessPath{
					Kind:            AccessFolder,
					FolderID:        *file.FolderID,
					SealedFolderKey: folderGrant.SealedKey,
					WrappedFileKey:  wrap.WrappedKey,
					WrapNonce:       wrap.Nonce,
				}, nil
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
		} else if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}

	return nil, common.ErrorForbidden
}

// ResolveFolderAccess checks folder membership only.
func (s *AccessService) ResolveFolderAccess(ctx context.Context, folderID, requesterID string) (*models.FolderKey, error) {
	if _, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID); err != nil {
		return nil, err
	}
	grant, err := s.repomanager.FolderKeys(s.db).Get(ctx, folderID, requesterID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorForbidden
		}
		return nil, err
	}
	return grant, nil
}

// ListAccessibleFiles returns every file the requester can decrypt, via
// either path. Trashed files are visible only to their owner.
func (s *AccessService) ListAccessibleFiles(ctx context.Context, requesterID string) ([]*models.File, error) {
	all, err := s.repomanager.Files(s.db).ListAccessible(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	result := make([]*models.File, 0, len(all))
	for _, f := range all {
		if f.Trashed() && f.OwnerID != requesterID {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// CreateFolder creates a folder together with the owner's own sealed copy
// of the folder key, in one transaction. The folder key itself is generated
// client-side and arrives only in sealed form.
func (s *AccessService) CreateFolder(ctx context.Context, ownerID, name string, parentID *string, sealedOwnerKey []byte) (*models.Folder, error) {
	if _, err := s.requireRecipient(ctx, ownerID); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := s.repomanager.Folders(s.db).GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.OwnerID != ownerID {
			return nil, common.ErrorForbidden
		}
	}

	folder := &models.Folder{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Name:     name,
		ParentID: parentID,
		State:    models.StateActive,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Folders(tx).Create(ctx, folder); err != nil {
			return err
		}
		return s.repomanager.FolderKeys(tx).Create(ctx, &models.FolderKey{
			FolderID:    folder.ID,
			RecipientID: ownerID,
			SealedKey:   sealedOwnerKey,
			GrantedBy:   ownerID,
		})
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ShareFolder records a folder membership grant: the folder key sealed to
// the recipient. Duplicate membership is a conflict.
func (s *AccessService) ShareFolder(ctx context.Context, folderID, recipientID string, sealedKey []byte, grantedBy string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.Trashed() {
		return common.ErrorInvalidState
	}
	if _, err := s.requireRecipient(ctx, recipientID); err != nil {
		return err
	}
	if _, err := s.ResolveFolderAccess(ctx, folderID, grantedBy); err != nil {
		return err
	}

	return s.repomanager.FolderKeys(s.db).Create(ctx, &models.FolderKey{
		FolderID:    folderID,
		RecipientID: recipientID,
		SealedKey:   sealedKey,
		GrantedBy:   grantedBy,
	})
}

// RevokeFolderAccess deletes one membership row. The folder key is not
// rotated and the contained files' folder-scoped wraps are untouched: a
// member who already synced the folder key keeps what they copied, they
// just receive nothing new.
func (s *AccessService) RevokeFolderAccess(ctx context.Context, folderID, recipientID, revokedBy string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}

	grant, err := s.repomanager.FolderKeys(s.db).Get(ctx, folderID, recipientID)
	if err != nil {
		return err
	}

	if recipientID == folder.OwnerID {
		return common.ErrorForbidden
	}
	if revokedBy != folder.OwnerID && revokedBy != grant.GrantedBy {
		return common.ErrorForbidden
	}

	return s.repomanager.FolderKeys(s.db).Delete(ctx, folderID, recipientID)
}

// MoveFolder re-parents a folder. The ancestry check runs here, at move
// time, so the parent chain can never form a cycle.
func (s *AccessService) MoveFolder(ctx context.Context, folderID string, newParentID *string, byUser string) error {
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.OwnerID != byUser {
		return common.ErrorForbidden
	}

	if newParentID != nil {
		parent, err := s.repomanager.Folders(s.db).GetByID(ctx, *newParentID)
		if err != nil {
			return err
		}
		if parent.OwnerID != byUser {
			return common.ErrorForbidden
		}
		cyclic, err := s.repomanager.Folders(s.db).IsAncestor(ctx, *newParentID, folderID)
		if err != nil {
			return err
		}
		if cyclic {
			return common.ErrorConflict
		}
	}

	return s.repomanager.Folders(s.db).SetParent(ctx, folderID, newParentID)
}

// PlaceFileInFolder records the file's placement together with its content
// key wrapped under the folder key (client-side wrap), in one transaction.
// A file lives in at most one folder.
func (s *AccessService) PlaceFileInFolder(ctx context.Context, fileID, folderID string, wrappedKey, nonce []byte, byUser string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if file.Trashed() {
		return common.ErrorInvalidState
	}
	if file.FolderID != nil {
		return common.ErrorConflict
	}
	folder, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.Trashed() {
		return common.ErrorInvalidState
	}
	// placing requires the folder key, so the caller must be a member
	if _, err := s.ResolveFolderAccess(ctx, folderID, byUser); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.FolderFileKeys(tx).Create(ctx, &models.FolderFileKey{
			FileID:     fileID,
			FolderID:   folderID,
			WrappedKey: wrappedKey,
			Nonce:      nonce,
		}); err != nil {
			return err
		}
		return s.repomanager.Files(tx).SetFolder(ctx, fileID, &folderID)
	})
}

// RemoveFileFromFolder clears the placement and deletes the folder-scoped
// wrap. Direct grants are untouched.
func (s *AccessService) RemoveFileFromFolder(ctx context.Context, fileID, byUser string) error {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.OwnerID != byUser {
		return common.ErrorForbidden
	}
	if file.FolderID == nil {
		return common.ErrorInvalidState
	}

	folderID := *file.FolderID
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.FolderFileKeys(tx).Delete(ctx, fileID, folderID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return s.repomanager.Files(tx).SetFolder(ctx, fileID, nil)
	})
}
