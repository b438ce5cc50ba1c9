package models

import "time"

// FileKey is one row of the file access ledger: the file's content key
// sealed to one recipient's public key. At most one row exists per
// (file, recipient) pair. The owner's own row is created at
// upload-completion time, so ownership needs no special case in access
// resolution.
type FileKey struct {
	FileID      string
	RecipientID string
	// SealedKey is the content key in an anonymous sealed box addressed
	// to the recipient.
	SealedKey []byte
	// GrantedBy is the user who created this grant (the owner, or a
	// grantee re-sharing).
	GrantedBy string
	CreatedAt time.Time
}

// FolderKey is the folder analog of FileKey: the folder's symmetric key
// sealed to one member's public key.
type FolderKey struct {
	FolderID    string
	RecipientID string
	SealedKey   []byte
	GrantedBy   string
	CreatedAt   time.Time
}

// FolderFileKey holds a file's content key wrapped under its folder's
// symmetric key (not under any user's public key). Exactly one row per
// (file, folder) pair, present only while the file is placed in the folder.
// Anyone who can unseal the folder key can unwrap every contained file
// without a per-file asymmetric operation.
type FolderFileKey struct {
	FileID   string
	FolderID string
	// WrappedKey/Nonce are the XChaCha20-Poly1305 wrap of the content key
	// under the folder key.
	WrappedKey []byte
	Nonce      []byte
	CreatedAt  time.Time
}

// QuotaSettings is the externally settable per-user storage policy.
type QuotaSettings struct {
	UserID string
	// SizeLimit is the maximum total size of active files, in bytes.
	SizeLimit int64
	// RetentionDays controls scheduled purge of trashed objects.
	// 0 means never auto-purge.
	RetentionDays int
}
