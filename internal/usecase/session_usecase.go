// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new identity.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput defines the data required for an identity to log in.
type LoginInput struct {
	Email    string
	Password string
}

// RefreshInput carries the refresh credential presented by the client.
type RefreshInput struct {
	RefreshToken string
}

// LogoutInput identifies the session to end. IdentityID is set when the access-guard
// resolved the caller; otherwise the refresh credential is used to find the identity.
type LogoutInput struct {
	IdentityID   *uuid.UUID
	RefreshToken string
}

// --- Output DTOs ---

// SessionOutput is returned by every operation that starts or rotates a session.
type SessionOutput struct {
	Identity *entity.PublicIdentity
	Tokens   *service.TokenPair
}

// SessionUsecase defines the session lifecycle: register, login, refresh, logout
// and the access-guard used by protected routes.
type SessionUsecase interface {
	Register(ctx context.Context, input RegisterInput) (*SessionOutput, error)
	Login(ctx context.Context, input LoginInput) (*SessionOutput, error)
	Refresh(ctx context.Context, input RefreshInput) (*SessionOutput, error)

	// Logout is idempotent and never reports store failures to the caller.
	Logout(ctx context.Context, input LogoutInput) error

	// Authenticate verifies an access credential and returns the stripped identity.
	Authenticate(ctx context.Context, accessToken string) (*entity.PublicIdentity, error)

	GetProfile(ctx context.Context, identityID uuid.UUID) (*entity.PublicIdentity, error)
}
