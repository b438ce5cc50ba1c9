package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lockboxd/lockbox/internal/common"
)

func TestIdentityRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	encPub := make([]byte, 32)
	signPub := make([]byte, 32)

	user, err := env.identity.Register(ctx, "alice", "alice@example.com", encPub, signPub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == "" {
		t.Error("expected generated id")
	}
	if user.Username != "alice" {
		t.Errorf("unexpected username: %s", user.Username)
	}

	got, err := env.identity.Lookup(ctx, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("unexpected email: %s", got.Email)
	}
}

func TestIdentityRegisterBadKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		encPub  []byte
		signPub []byte
	}{
		{name: "short encryption key", encPub: make([]byte, 16), signPub: make([]byte, 32)},
		{name: "missing encryption key", encPub: nil, signPub: make([]byte, 32)},
		{name: "missing signing key", encPub: make([]byte, 32), signPub: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.identity.Register(ctx, "bob", "bob@example.com", tt.encPub, tt.signPub)
			if !errors.Is(err, common.ErrorNoPublicKey) {
				t.Errorf("expected ErrorNoPublicKey, got %v", err)
			}
		})
	}
}

func TestIdentityRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	encPub := make([]byte, 32)
	signPub := make([]byte, 32)

	if _, err := env.identity.Register(ctx, "alice", "alice@example.com", encPub, signPub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := env.identity.Register(ctx, "alice", "other@example.com", encPub, signPub)
	if !errors.Is(err, common.ErrorAlreadyRegistered) {
		t.Errorf("expected ErrorAlreadyRegistered, got %v", err)
	}
}

func TestIdentityLookupNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.identity.Lookup(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Errorf("expected ErrorNotFound, got %v", err)
	}
}

func TestIdentitySearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addUser(t, "alice")
	env.addUser(t, "albert")
	env.addUser(t, "bob")

	found, err := env.identity.Search(ctx, "al")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 results, got %d", len(found))
	}
	if found[0].Username != "albert" || found[1].Username != "alice" {
		t.Errorf("unexpected order: %s, %s", found[0].Username, found[1].Username)
	}
}
