// Package services implements the server-side protocol on top of the
// repositories: identity registration, the file/folder access ledger with
// its resolver, upload/download grants, and the trash/purge lifecycle.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lockboxd/lockbox/internal/common"
	"github.com/lockboxd/lockbox/internal/keywrap"
	"github.com/lockboxd/lockbox/internal/server/models"
	"github.com/lockboxd/lockbox/internal/server/repositories/repomanager"
)

const searchLimit = 20

// IdentityService is the identity registry: public keys in, never private
// keys. Keys are immutable once registered.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewIdentityService(db *sql.DB, rm repomanager.RepositoryManager) *IdentityService {
	return &IdentityService{db: db, repomanager: rm}
}

// Register stores a new identity with its long-lived public keys. Returns
// common.ErrorAlreadyRegistered when the username or email is taken — keys
// never rotate, since rotation would orphan every existing grant sealed to
// them.
func (s *IdentityService) Register(ctx context.Context, username, email string, encryptionPub, signingPub []byte) (*models.User, error) {
	if len(encryptionPub) != keywrap.PublicKeySize {
		return nil, fmt.Errorf("%w: encryption public key must be %d bytes", common.ErrorNoPublicKey, keywrap.PublicKeySize)
	}
	if len(signingPub) == 0 {
		return nil, fmt.Errorf("%w: signing public key required", common.ErrorNoPublicKey)
	}

	user := &models.User{
		ID:                  uuid.NewString(),
		Username:            username,
		Email:               email,
		EncryptionPublicKey: encryptionPub,
		SigningPublicKey:    signingPub,
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Lookup returns the identity or common.ErrorNotFound.
func (s *IdentityService) Lookup(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

// Search is a directory lookup by username or email prefix. Finding a user
// grants nothing by itself.
func (s *IdentityService) Search(ctx context.Context, query string) ([]*models.User, error) {
	return s.repomanager.Users(s.db).Search(ctx, query, searchLimit)
}
