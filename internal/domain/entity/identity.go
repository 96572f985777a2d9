// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is a user account as seen by the session subsystem.
// RefreshToken is the refresh slot: the single refresh credential currently honored, or nil.
type Identity struct {
	ID           uuid.UUID  // Stable unique identifier.
	Email        string     // Login identifier, stored normalized (see NormalizeEmail).
	Name         string     // Optional display name.
	PasswordHash string     // Opaque password secret. Never leaves the service layer.
	Active       bool       // Toggled by account management; inactive identities cannot hold sessions.
	RefreshToken *string    // The refresh slot.
	RevokedAt    *time.Time // Set when the slot was cleared by logout.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicIdentity is the view of an Identity handed to request handlers and clients.
// It never carries the password secret or the refresh slot.
type PublicIdentity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips the secret fields from the identity.
func (i *Identity) Public() *PublicIdentity {
	if i == nil {
		return nil
	}

	return &PublicIdentity{
		ID:        i.ID,
		Email:     i.Email,
		Name:      i.Name,
		Active:    i.Active,
		CreatedAt: i.CreatedAt,
	}
}

// Clone returns a deep copy, so stores can hand out identities without sharing the slot pointer.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}

	cloned := *i
	if i.RefreshToken != nil {
		token := *i.RefreshToken
		cloned.RefreshToken = &token
	}
	if i.RevokedAt != nil {
		revokedAt := *i.RevokedAt
		cloned.RevokedAt = &revokedAt
	}

	return &cloned
}

// NormalizeEmail trims and lower-cases an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
