package models

import "time"

// Lifecycle states shared by files and folders.
const (
	StateActive  = "active"
	StateTrashed = "trashed"
)

// Upload states for a file's content blob.
const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
)

// File describes server-side metadata for one content object. The encrypted
// bytes live in object storage under StorageKey; the server only ever sees
// ciphertext and wrapped keys.
type File struct {
	ID      string
	OwnerID string
	// Name is the client-supplied display name. The server does not
	// interpret it.
	Name string
	// Size is the plaintext size in bytes, used for quota accounting.
	Size int64
	// StorageKey is the object-storage key (path) of the ciphertext blob.
	StorageKey string
	// Nonce is the AEAD nonce the client used to encrypt the content.
	Nonce []byte
	// FolderID is set while the file is placed in a folder.
	FolderID *string
	// UploadStatus tracks blob upload state ("pending", "completed").
	UploadStatus string

	// State is "active" or "trashed". Deletion metadata below is set only
	// while trashed.
	State            string
	DeletedAt        *time.Time
	DeletedBy        *string
	ScheduledPurgeAt *time.Time

	CreatedAt time.Time
}

// Trashed reports whether the file is in the trash.
func (f *File) Trashed() bool { return f.State == StateTrashed }
