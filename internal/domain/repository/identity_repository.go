// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"errors"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

var (
	// ErrIdentityNotFound is returned when no identity matches the lookup.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrDuplicateIdentity is returned by Create when the normalized email is already taken.
	ErrDuplicateIdentity = errors.New("identity already exists")
)

// IdentityRepository is the identity store the session subsystem depends on.
// Email uniqueness is case-insensitive and enforced by the store.
type IdentityRepository interface {
	// FindByID retrieves a single identity by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error)

	// FindByEmail retrieves a single identity by email, ignoring case.
	FindByEmail(ctx context.Context, email string) (*entity.Identity, error)

	// Create persists a new identity, including its initial refresh slot.
	Create(ctx context.Context, identity *entity.Identity) error

	// Save persists the mutable fields: name, active flag, refresh slot and timestamps.
	// It is the account-management write; session code uses SetRefreshToken.
	Save(ctx context.Context, identity *entity.Identity) error

	// SetRefreshToken overwrites the refresh slot unconditionally and leaves every other
	// field untouched. A nil next empties the slot and stamps revoked_at.
	// Returns ErrIdentityNotFound for an unknown id.
	SetRefreshToken(ctx context.Context, id uuid.UUID, next *string) error

	// SwapRefreshToken replaces the refresh slot with next only if it currently equals expected.
	// A nil expected matches an empty slot. It reports whether the swap happened.
	SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next *string) (bool, error)
}
