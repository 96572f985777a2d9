package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the type marker carried in every token.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// TokenErrorKind classifies why a token failed verification.
type TokenErrorKind string

const (
	// TokenExpired means the token was well-formed and correctly signed but is past its expiry.
	TokenExpired TokenErrorKind = "EXPIRED"
	// TokenMalformed covers unparsable tokens, unexpected algorithms, a wrong type marker or a bad subject.
	TokenMalformed TokenErrorKind = "MALFORMED"
	// TokenWrongKey means the signature does not match the key for the expected type.
	TokenWrongKey TokenErrorKind = "WRONG_KEY"
)

// TokenError is the typed failure returned by TokenService.Verify.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("token %s", e.Kind)
	}

	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Claims defines the custom claims for the JWT tokens.
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *Claims) IdentityID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenPair is the result of one issuance: an access and a refresh token with their expiries.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues and verifies the paired session tokens.
// Access and refresh tokens are signed with different keys.
type TokenService interface {
	// IssuePair mints a fresh access and refresh token for the identity.
	IssuePair(identityID uuid.UUID) (*TokenPair, error)

	// Verify checks signature, expiry and type marker. Failures are *TokenError.
	Verify(token string, expected TokenType) (*Claims, error)

	// VerifyIgnoringExpiry is Verify without the expiry check, for best-effort logout.
	VerifyIgnoringExpiry(token string, expected TokenType) (*Claims, error)

	// AccessTokenTTL returns the configured access token lifetime.
	AccessTokenTTL() time.Duration

	// RefreshTokenTTL returns the configured refresh token lifetime.
	RefreshTokenTTL() time.Duration
}
