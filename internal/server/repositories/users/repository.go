// Package users stores registered identities and their public keys.
package users

import (
	"context"

	"github.com/lockboxd/lockbox/internal/server/models"
)

type Repository interface {
	// Create inserts a new identity. Returns common.ErrorAlreadyRegistered
	// when the username or email is taken.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByID returns the identity or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// Search returns identities whose username or email starts with query.
	Search(ctx context.Context, query string, limit int) ([]*models.User, error)
}
