// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekeeper/config"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/errors"
)

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
type jwtService struct {
	accessSecret  []byte           // Secret key for signing access tokens.
	refreshSecret []byte           // Secret key for signing refresh tokens.
	accessTTL     time.Duration    // Time-to-live for access tokens.
	refreshTTL    time.Duration    // Time-to-live for refresh tokens.
	issuer        string           // Optional iss claim; verified when set.
	now           func() time.Time // Clock, replaceable in tests.
}

// NewJWTService is the constructor for jwtService.
// It takes configuration values to create a new token service instance.
func NewJWTService(cfg *config.Config) (service.TokenService, error) {
	return NewJWTServiceWithClock(cfg, time.Now)
}

// NewJWTServiceWithClock builds the token service with an explicit clock.
func NewJWTServiceWithClock(cfg *config.Config, now func() time.Time) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}
	if cfg.SecretKey.Access == cfg.SecretKey.Refresh {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth config must be provided")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return nil, errors.Errorf("token lifetimes must be positive: access=%s refresh=%s",
			cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	}
	if now == nil {
		now = time.Now
	}

	return &jwtService{
		accessSecret:  []byte(cfg.SecretKey.Access),
		refreshSecret: []byte(cfg.SecretKey.Refresh),
		accessTTL:     cfg.Auth.AccessTokenTTL,
		refreshTTL:    cfg.Auth.RefreshTokenTTL,
		issuer:        cfg.Auth.Issuer,
		now:           now,
	}, nil
}

// IssuePair creates a new access token and refresh token for the identity.
func (s *jwtService) IssuePair(identityID uuid.UUID) (*service.TokenPair, error) {
	issuedAt := s.now()

	accessToken, accessExp, err := s.generateToken(identityID, service.AccessToken, issuedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign access token")
	}

	refreshToken, refreshExp, err := s.generateToken(identityID, service.RefreshToken, issuedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign refresh token")
	}

	return &service.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks the token against the key of the expected type, its expiry and its type marker.
func (s *jwtService) Verify(token string, expected service.TokenType) (*service.Claims, error) {
	return s.parse(token, expected, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
}

// VerifyIgnoringExpiry checks signature and type marker but accepts expired tokens.
func (s *jwtService) VerifyIgnoringExpiry(token string, expected service.TokenType) (*service.Claims, error) {
	return s.parse(token, expected, jwt.WithoutClaimsValidation())
}

// AccessTokenTTL returns the configured duration for access tokens.
func (s *jwtService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// RefreshTokenTTL returns the configured duration for refresh tokens.
func (s *jwtService) RefreshTokenTTL() time.Duration {
	return s.refreshTTL
}

func (s *jwtService) parse(token string, expected service.TokenType, opts ...jwt.ParserOption) (*service.Claims, error) {
	secret, err := s.secretFor(expected)
	if err != nil {
		return nil, &service.TokenError{Kind: service.TokenMalformed, Err: err}
	}

	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &service.Claims{}
	_, err = jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		// Ensure the signing method is what we expect.
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errUnexpectedSigningMethod
		}

		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Type != expected {
		return nil, &service.TokenError{
			Kind: service.TokenMalformed,
			Err:  errors.Errorf("expected %s token, got %q", expected, claims.Type),
		}
	}
	if _, err := claims.IdentityID(); err != nil {
		return nil, &service.TokenError{Kind: service.TokenMalformed, Err: errors.Wrap(err, "invalid subject")}
	}

	return claims, nil
}

// classify maps jwt parser errors onto the token error kinds.
func classify(err error) *service.TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &service.TokenError{Kind: service.TokenWrongKey, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &service.TokenError{Kind: service.TokenExpired, Err: err}
	default:
		return &service.TokenError{Kind: service.TokenMalformed, Err: err}
	}
}

func (s *jwtService) secretFor(tokenType service.TokenType) ([]byte, error) {
	switch tokenType {
	case service.AccessToken:
		return s.accessSecret, nil
	case service.RefreshToken:
		return s.refreshSecret, nil
	default:
		return nil, errors.Errorf("unknown token type %q", tokenType)
	}
}

// generateToken is a private helper to create a JWT with specific claims.
func (s *jwtService) generateToken(identityID uuid.UUID, tokenType service.TokenType, issuedAt time.Time) (string, time.Time, error) {
	secret, err := s.secretFor(tokenType)
	if err != nil {
		return "", time.Time{}, err
	}

	ttl := s.accessTTL
	if tokenType == service.RefreshToken {
		ttl = s.refreshTTL
	}

	claims := &service.Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			// jti keeps two tokens minted within the same second distinct.
			ID: uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.ExpiresAt.Time, nil
}
