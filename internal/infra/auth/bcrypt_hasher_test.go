package auth

import (
	"strings"
	"testing"

	"gatekeeper/config"
	domainerrors "gatekeeper/internal/domain/errors"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasherConfig() *config.Config {
	cfg := newTestConfig()
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.MinPasswordLength = 8
	cfg.Auth.MaxPasswordLength = 72

	return cfg
}

func TestBcryptHasher_Hash(t *testing.T) {
	hasher := NewBcryptHasher(newTestHasherConfig())

	password := "password123"
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	// Verify the hash can be checked
	assert.True(t, hasher.Check(password, hash))
}

func TestBcryptHasher_Check(t *testing.T) {
	hasher := NewBcryptHasher(newTestHasherConfig())
	password := "StrongPass123!"

	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	assert.True(t, hasher.Check(password, hash))
	assert.False(t, hasher.Check("WrongPassword123!", hash))
	assert.False(t, hasher.Check("", hash))
	assert.False(t, hasher.Check(password, "not-a-bcrypt-hash"))
}

func TestBcryptHasher_ValidatePasswordStrength(t *testing.T) {
	hasher := NewBcryptHasher(newTestHasherConfig())

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "minimum length", password: "12345678"},
		{name: "common password", password: "password123"},
		{name: "multibyte characters count once", password: "密碼密碼密碼密碼"},
		{name: "too short", password: "1234567", wantErr: true},
		{name: "empty", password: "", wantErr: true},
		{name: "exceeds bcrypt limit", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hasher.ValidatePasswordStrength(tt.password)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, domainerrors.ErrWeakSecret))

			var appErr domainerrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "WEAK_SECRET", appErr.ErrorCode())
		})
	}
}

func TestBcryptHasher_FallsBackToDefaults(t *testing.T) {
	cfg := newTestConfig()
	cfg.Auth.BcryptCost = 99

	hasher := NewBcryptHasher(cfg).(*bcryptHasher)

	assert.Equal(t, bcrypt.DefaultCost, hasher.cost)
	assert.Equal(t, config.DefaultMinPasswordLength, hasher.minLength)
	assert.Equal(t, config.DefaultMaxPasswordLength, hasher.maxLength)
}
