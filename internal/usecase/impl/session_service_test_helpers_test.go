package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/infra/auth"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig(strictRotation bool) *config.Config {
	return &config.Config{
		SecretKey: config.SecretKeyConfig{
			Access:  "session_test_access_secret_0123456789",
			Refresh: "session_test_refresh_secret_0123456789",
		},
		Auth: &config.AuthConfig{
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			Issuer:            "gatekeeper-test",
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
			MaxPasswordLength: 72,
			StrictRotation:    strictRotation,
		},
	}
}

type fakeClock struct {
	mu  sync.RWMutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// memoryIdentityRepo is an in-memory IdentityRepository with per-operation error injection.
type memoryIdentityRepo struct {
	mu         sync.Mutex
	identities map[uuid.UUID]*entity.Identity

	findErr   error
	createErr error
	saveErr   error
	slotErr   error
	swapErr   error

	saves      int
	slotWrites int
	swaps      int
}

func newMemoryIdentityRepo() *memoryIdentityRepo {
	return &memoryIdentityRepo{identities: make(map[uuid.UUID]*entity.Identity)}
}

func (r *memoryIdentityRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}

	identity, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrIdentityNotFound
	}

	return identity.Clone(), nil
}

func (r *memoryIdentityRepo) FindByEmail(_ context.Context, email string) (*entity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}

	for _, identity := range r.identities {
		if identity.Email == entity.NormalizeEmail(email) {
			return identity.Clone(), nil
		}
	}

	return nil, repository.ErrIdentityNotFound
}

func (r *memoryIdentityRepo) Create(_ context.Context, identity *entity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}

	for _, existing := range r.identities {
		if existing.Email == entity.NormalizeEmail(identity.Email) {
			return repository.ErrDuplicateIdentity
		}
	}

	r.identities[identity.ID] = identity.Clone()

	return nil
}

func (r *memoryIdentityRepo) Save(_ context.Context, identity *entity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}

	if _, ok := r.identities[identity.ID]; !ok {
		return repository.ErrIdentityNotFound
	}
	r.identities[identity.ID] = identity.Clone()

	return nil
}

func (r *memoryIdentityRepo) SetRefreshToken(_ context.Context, id uuid.UUID, next *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slotWrites++
	if r.slotErr != nil {
		return r.slotErr
	}

	identity, ok := r.identities[id]
	if !ok {
		return repository.ErrIdentityNotFound
	}

	if next == nil {
		identity.RevokeSession(time.Now())
	} else {
		identity.StartSession(*next, time.Now())
	}

	return nil
}

func (r *memoryIdentityRepo) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, next *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.swaps++
	if r.swapErr != nil {
		return false, r.swapErr
	}

	identity, ok := r.identities[id]
	if !ok {
		return false, nil
	}

	switch {
	case expected == nil && identity.RefreshToken != nil,
		expected != nil && (identity.RefreshToken == nil || *identity.RefreshToken != *expected):
		return false, nil
	}

	now := time.Now()
	if next == nil {
		identity.RevokeSession(now)
	} else {
		identity.StartSession(*next, now)
	}

	return true, nil
}

// slot returns the stored refresh slot of an identity.
func (r *memoryIdentityRepo) slot(id uuid.UUID) *string {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[id]
	if !ok || identity.RefreshToken == nil {
		return nil
	}
	token := *identity.RefreshToken

	return &token
}

func (r *memoryIdentityRepo) setActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities[id].Active = active
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishIdentityRegistered(ctx context.Context, event *service.IdentityRegisteredEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *mockEventPublisher) Close() error {
	return m.Called().Error(0)
}

type sessionFixture struct {
	srv       *sessionService
	repo      *memoryIdentityRepo
	clock     *fakeClock
	tokens    service.TokenService
	publisher *mockEventPublisher
	cfg       *config.Config
}

func newSessionFixture(t *testing.T, strictRotation bool) *sessionFixture {
	t.Helper()

	cfg := newTestConfig(strictRotation)
	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}

	tokens, err := auth.NewJWTServiceWithClock(cfg, clock.Now)
	require.NoError(t, err)

	repo := newMemoryIdentityRepo()
	publisher := &mockEventPublisher{}

	srv := NewSessionService(SessionServiceParams{
		IdentityRepo:   repo,
		Hasher:         auth.NewBcryptHasher(cfg),
		TokenService:   tokens,
		EventPublisher: publisher,
		Config:         cfg,
		Logger:         newDiscardLogger(),
	}).(*sessionService)
	srv.now = clock.Now

	return &sessionFixture{
		srv:       srv,
		repo:      repo,
		clock:     clock,
		tokens:    tokens,
		publisher: publisher,
		cfg:       cfg,
	}
}

// expectPublish accepts any number of registration events.
func (f *sessionFixture) expectPublish() {
	f.publisher.On("PublishIdentityRegistered", mock.Anything, mock.AnythingOfType("*service.IdentityRegisteredEvent")).
		Return(nil).Maybe()
}
