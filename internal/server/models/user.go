// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a registered identity. Only public keys are stored; the matching
// private keys never leave the user's devices. Keys are immutable once
// registered: rotating them would orphan every wrapped-key grant sealed to
// the old key.
type User struct {
	ID string
	// Username is the unique handle used for directory search.
	Username string
	Email    string
	// EncryptionPublicKey is the X25519 key content keys are sealed to.
	// A user without one cannot be a sharing recipient.
	EncryptionPublicKey []byte
	// SigningPublicKey is the Ed25519 key clients verify each other with.
	SigningPublicKey []byte
	CreatedAt        time.Time
}
