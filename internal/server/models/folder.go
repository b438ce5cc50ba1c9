package models

import "time"

// Folder groups files under one symmetric folder key. The folder key itself
// is never stored in plaintext server-side: each member holds it sealed to
// their own public key (FolderKey rows), and each contained file's content
// key is wrapped under it (FolderFileKey rows).
type Folder struct {
	ID      string
	OwnerID string
	Name    string
	// ParentID is set for nested folders. Ancestry is checked on create
	// and move so the parent chain can never form a cycle.
	ParentID *string

	State            string
	DeletedAt        *time.Time
	DeletedBy        *string
	ScheduledPurgeAt *time.Time

	CreatedAt time.Time
}

// Trashed reports whether the folder is in the trash.
func (f *Folder) Trashed() bool { return f.State == StateTrashed }
