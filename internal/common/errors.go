// Package common defines shared constants and sentinel errors used across
// Lockbox components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Identity errors.
	ErrorAlreadyRegistered = errors.New("already registered")
	ErrorNoPublicKey       = errors.New("no encryption public key")

	// Authorization errors.
	ErrorForbidden = errors.New("forbidden")

	// Key material that does not open with the given identity.
	ErrorDecryptionFailed = errors.New("decryption failed")

	// Lifecycle / quota errors.
	ErrorQuotaExceeded = errors.New("quota exceeded")
	ErrorInvalidState  = errors.New("invalid state")
)
