package entity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// SessionStatus enumerates the logical states of an identity's refresh slot.
type SessionStatus int

const (
	// SessionNone means no refresh credential was ever issued (or the identity was just created).
	SessionNone SessionStatus = iota
	// SessionActive means exactly one refresh credential is honored.
	SessionActive
	// SessionRevoked means the last session was ended by logout.
	SessionRevoked
)

func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionRevoked:
		return "revoked"
	default:
		return "none"
	}
}

// SessionState is the tagged view of the refresh slot. Fingerprint is only set when Active.
type SessionState struct {
	Status      SessionStatus
	Fingerprint string
}

// TokenFingerprint returns the hex SHA-256 of a token, safe to log and compare.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// SessionState derives the tagged session state from the persisted slot.
func (i *Identity) SessionState() SessionState {
	switch {
	case i.RefreshToken != nil:
		return SessionState{Status: SessionActive, Fingerprint: TokenFingerprint(*i.RefreshToken)}
	case i.RevokedAt != nil:
		return SessionState{Status: SessionRevoked}
	default:
		return SessionState{Status: SessionNone}
	}
}

// Holds reports whether the state is an active session bound to token.
func (s SessionState) Holds(token string) bool {
	if s.Status != SessionActive {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(s.Fingerprint), []byte(TokenFingerprint(token))) == 1
}

// StartSession binds the slot to a freshly issued refresh token, replacing any previous one.
func (i *Identity) StartSession(refreshToken string, now time.Time) {
	i.RefreshToken = &refreshToken
	i.RevokedAt = nil
	i.UpdatedAt = now
}

// RevokeSession clears the slot. Calling it on an identity without a session is a no-op
// apart from refreshing the revocation timestamp.
func (i *Identity) RevokeSession(now time.Time) {
	i.RefreshToken = nil
	i.RevokedAt = &now
	i.UpdatedAt = now
}
