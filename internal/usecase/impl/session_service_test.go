package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "password123"
)

func requireDomainError(t *testing.T, err error, target *domainerrors.BaseError) {
	t.Helper()

	require.Error(t, err)
	assert.True(t, errors.Is(err, target), "expected %s, got %v", target.ErrorCode(), err)
}

func registerAlice(t *testing.T, f *sessionFixture) *usecase.SessionOutput {
	t.Helper()

	f.expectPublish()
	out, err := f.srv.Register(context.Background(), usecase.RegisterInput{
		Email:    aliceEmail,
		Password: alicePassword,
		Name:     "Alice",
	})
	require.NoError(t, err)
	f.srv.events.Wait()

	return out
}

func TestSessionService_Register(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := deliverycontext.WithRequestID(context.Background(), "req-1")

	var published *service.IdentityRegisteredEvent
	f.publisher.On("PublishIdentityRegistered", mock.Anything, mock.AnythingOfType("*service.IdentityRegisteredEvent")).
		Run(func(args mock.Arguments) {
			published = args.Get(1).(*service.IdentityRegisteredEvent)
		}).
		Return(nil).Once()

	out, err := f.srv.Register(ctx, usecase.RegisterInput{Email: "  Alice@Example.com ", Password: alicePassword, Name: "Alice"})
	require.NoError(t, err)
	f.srv.events.Wait()

	require.NotNil(t, out.Identity)
	require.NotNil(t, out.Tokens)
	assert.Equal(t, aliceEmail, out.Identity.Email)
	assert.Equal(t, "Alice", out.Identity.Name)
	assert.True(t, out.Identity.Active)
	assert.NotEmpty(t, out.Tokens.AccessToken)
	assert.NotEmpty(t, out.Tokens.RefreshToken)

	slot := f.repo.slot(out.Identity.ID)
	require.NotNil(t, slot)
	assert.Equal(t, out.Tokens.RefreshToken, *slot)

	stored, err := f.repo.FindByID(ctx, out.Identity.ID)
	require.NoError(t, err)
	assert.NotEqual(t, alicePassword, stored.PasswordHash)
	assert.Equal(t, entity.SessionActive, stored.SessionState().Status)

	f.publisher.AssertExpectations(t)
	require.NotNil(t, published)
	assert.Equal(t, out.Identity.ID.String(), published.IdentityID)
	assert.Equal(t, aliceEmail, published.Email)
	assert.Equal(t, "req-1", published.RequestID)
	assert.NotEmpty(t, published.EventID)
}

func TestSessionService_RegisterDuplicateIsCaseInsensitive(t *testing.T) {
	f := newSessionFixture(t, true)
	registerAlice(t, f)

	_, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: "ALICE@example.com", Password: alicePassword})
	requireDomainError(t, err, domainerrors.ErrDuplicateIdentity)
}

func TestSessionService_RegisterConcurrentDuplicate(t *testing.T) {
	f := newSessionFixture(t, true)
	existing := &entity.Identity{ID: uuid.New(), Email: aliceEmail, Active: true}
	require.NoError(t, f.repo.Create(context.Background(), existing))

	// The pre-check passes, the store still reports the unique violation.
	f.srv.identityRepo = &raceyCreateRepo{memoryIdentityRepo: f.repo}

	_, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: aliceEmail, Password: alicePassword})
	requireDomainError(t, err, domainerrors.ErrDuplicateIdentity)
}

// raceyCreateRepo hides existing identities from FindByEmail, as if they were inserted after the check.
type raceyCreateRepo struct {
	*memoryIdentityRepo
}

func (r *raceyCreateRepo) FindByEmail(context.Context, string) (*entity.Identity, error) {
	return nil, repository.ErrIdentityNotFound
}

func TestSessionService_RegisterWeakSecret(t *testing.T) {
	f := newSessionFixture(t, true)

	_, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: aliceEmail, Password: "short"})
	requireDomainError(t, err, domainerrors.ErrWeakSecret)

	_, err = f.repo.FindByEmail(context.Background(), aliceEmail)
	assert.Error(t, err)
	f.publisher.AssertNotCalled(t, "PublishIdentityRegistered", mock.Anything, mock.Anything)
}

func TestSessionService_RegisterPublishFailureDoesNotFail(t *testing.T) {
	f := newSessionFixture(t, true)
	f.publisher.On("PublishIdentityRegistered", mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()

	out, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)
	f.srv.events.Wait()

	assert.NotNil(t, out.Tokens)
	f.publisher.AssertExpectations(t)
}

func TestSessionService_RegisterPublishIsDetachedFromRequest(t *testing.T) {
	f := newSessionFixture(t, true)

	var publishCtxErr error
	f.publisher.On("PublishIdentityRegistered", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			publishCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.srv.Register(ctx, usecase.RegisterInput{Email: aliceEmail, Password: alicePassword})
	cancel()
	require.NoError(t, err)
	f.srv.events.Wait()

	assert.NoError(t, publishCtxErr)
}

func TestSessionService_RegisterStoreFailure(t *testing.T) {
	f := newSessionFixture(t, true)
	storeErr := errors.New("connection refused")
	f.repo.createErr = storeErr

	_, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: aliceEmail, Password: alicePassword})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storeErr))

	var appErr domainerrors.AppError
	assert.False(t, errors.As(err, &appErr), "store failures must surface as internal errors")
	f.publisher.AssertNotCalled(t, "PublishIdentityRegistered", mock.Anything, mock.Anything)
}

func TestSessionService_Login(t *testing.T) {
	f := newSessionFixture(t, true)
	registered := registerAlice(t, f)

	out, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: "Alice@example.com", Password: alicePassword})
	require.NoError(t, err)
	assert.Equal(t, registered.Identity.ID, out.Identity.ID)

	slot := f.repo.slot(out.Identity.ID)
	require.NotNil(t, slot)
	assert.Equal(t, out.Tokens.RefreshToken, *slot)
}

func TestSessionService_LoginFailures(t *testing.T) {
	f := newSessionFixture(t, true)
	registered := registerAlice(t, f)
	before := f.repo.slot(registered.Identity.ID)

	t.Run("wrong password leaves the slot alone", func(t *testing.T) {
		_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: "wrong-password"})
		requireDomainError(t, err, domainerrors.ErrInvalidCredentials)
		assert.Equal(t, before, f.repo.slot(registered.Identity.ID))
	})

	t.Run("unknown email gets the same error", func(t *testing.T) {
		_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: "bob@example.com", Password: alicePassword})
		requireDomainError(t, err, domainerrors.ErrInvalidCredentials)
		assert.NotEmpty(t, f.srv.dummyHash)
	})

	t.Run("disabled account", func(t *testing.T) {
		f.repo.setActive(registered.Identity.ID, false)
		defer f.repo.setActive(registered.Identity.ID, true)

		_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: alicePassword})
		requireDomainError(t, err, domainerrors.ErrAccountDisabled)
	})

	t.Run("store write failure", func(t *testing.T) {
		storeErr := errors.New("disk full")
		f.repo.slotErr = storeErr
		defer func() { f.repo.slotErr = nil }()

		_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: alicePassword})
		require.Error(t, err)
		assert.True(t, errors.Is(err, storeErr))
	})
}

func TestSessionService_SecondLoginInvalidatesFirstSession(t *testing.T) {
	f := newSessionFixture(t, true)
	registerAlice(t, f)

	first, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)
	second, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)

	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)
	assert.Equal(t, second.Tokens.RefreshToken, *f.repo.slot(second.Identity.ID))

	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: first.Tokens.RefreshToken})
	requireDomainError(t, err, domainerrors.ErrRevokedOrStale)

	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: second.Tokens.RefreshToken})
	assert.NoError(t, err)
}

func TestSessionService_RefreshIsSingleUse(t *testing.T) {
	for _, strict := range []bool{true, false} {
		t.Run(map[bool]string{true: "strict", false: "read-compare-save"}[strict], func(t *testing.T) {
			f := newSessionFixture(t, strict)
			registered := registerAlice(t, f)
			original := registered.Tokens.RefreshToken

			rotated, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: original})
			require.NoError(t, err)
			assert.NotEqual(t, original, rotated.Tokens.RefreshToken)
			assert.Equal(t, rotated.Tokens.RefreshToken, *f.repo.slot(registered.Identity.ID))

			_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: original})
			requireDomainError(t, err, domainerrors.ErrRevokedOrStale)
		})
	}
}

func TestSessionService_RefreshRotationMode(t *testing.T) {
	strict := newSessionFixture(t, true)
	out := registerAlice(t, strict)
	_, err := strict.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, 1, strict.repo.swaps)
	assert.Equal(t, 0, strict.repo.slotWrites)

	lenient := newSessionFixture(t, false)
	out = registerAlice(t, lenient)
	_, err = lenient.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, 0, lenient.repo.swaps)
	assert.Equal(t, 1, lenient.repo.slotWrites)
	assert.Equal(t, 0, lenient.repo.saves)
}

func TestSessionService_ConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []string
		failures  []error
	)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, res.Tokens.RefreshToken)
		}()
	}
	wg.Wait()

	require.Len(t, successes, 1)
	assert.Equal(t, successes[0], *f.repo.slot(out.Identity.ID))
	for _, err := range failures {
		requireDomainError(t, err, domainerrors.ErrRevokedOrStale)
	}
}

func TestSessionService_RefreshFailures(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	t.Run("missing", func(t *testing.T) {
		_, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{})
		requireDomainError(t, err, domainerrors.ErrMissingCredential)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: "not-a-token"})
		requireDomainError(t, err, domainerrors.ErrInvalidRefresh)
	})

	t.Run("access token presented", func(t *testing.T) {
		_, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.AccessToken})
		requireDomainError(t, err, domainerrors.ErrInvalidRefresh)
	})

	t.Run("store failure", func(t *testing.T) {
		storeErr := errors.New("timeout")
		f.repo.swapErr = storeErr
		defer func() { f.repo.swapErr = nil }()

		_, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
		require.Error(t, err)
		assert.True(t, errors.Is(err, storeErr))
	})

	t.Run("expired", func(t *testing.T) {
		expiring := newSessionFixture(t, true)
		registered := registerAlice(t, expiring)
		expiring.clock.Advance(expiring.cfg.Auth.RefreshTokenTTL + time.Second)

		_, err := expiring.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: registered.Tokens.RefreshToken})
		requireDomainError(t, err, domainerrors.ErrInvalidRefresh)
	})
}

func TestSessionService_LogoutThenRefresh(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)
	id := out.Identity.ID

	require.NoError(t, f.srv.Logout(context.Background(), usecase.LogoutInput{IdentityID: &id}))
	assert.Nil(t, f.repo.slot(id))

	stored, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionRevoked, stored.SessionState().Status)

	// Cleared cookie.
	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{})
	requireDomainError(t, err, domainerrors.ErrMissingCredential)

	// Client kept a copy of the old cookie.
	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
	requireDomainError(t, err, domainerrors.ErrRevokedOrStale)

	// Idempotent.
	assert.NoError(t, f.srv.Logout(context.Background(), usecase.LogoutInput{IdentityID: &id}))
}

func TestSessionService_LogoutByRefreshToken(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	// Expiry is ignored for logout.
	f.clock.Advance(f.cfg.Auth.RefreshTokenTTL + time.Hour)

	require.NoError(t, f.srv.Logout(context.Background(), usecase.LogoutInput{RefreshToken: out.Tokens.RefreshToken}))
	assert.Nil(t, f.repo.slot(out.Identity.ID))
}

func TestSessionService_LogoutWithStaleRefreshKeepsCurrentSession(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	rotated, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
	require.NoError(t, err)

	require.NoError(t, f.srv.Logout(context.Background(), usecase.LogoutInput{RefreshToken: out.Tokens.RefreshToken}))

	slot := f.repo.slot(out.Identity.ID)
	require.NotNil(t, slot)
	assert.Equal(t, rotated.Tokens.RefreshToken, *slot)
}

func TestSessionService_LogoutNeverFails(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)
	id := out.Identity.ID
	unknown := uuid.New()

	tests := []struct {
		name  string
		setup func()
		input usecase.LogoutInput
	}{
		{name: "nothing resolvable", input: usecase.LogoutInput{}},
		{name: "garbage refresh token", input: usecase.LogoutInput{RefreshToken: "garbage"}},
		{name: "unknown identity", input: usecase.LogoutInput{IdentityID: &unknown}},
		{
			name:  "slot write failure",
			setup: func() { f.repo.slotErr = errors.New("write failed") },
			input: usecase.LogoutInput{IdentityID: &id},
		},
		{
			name:  "load failure",
			setup: func() { f.repo.findErr = errors.New("read failed") },
			input: usecase.LogoutInput{IdentityID: &id},
		},
		{
			name:  "swap failure",
			setup: func() { f.repo.swapErr = errors.New("write failed") },
			input: usecase.LogoutInput{RefreshToken: out.Tokens.RefreshToken},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			defer func() {
				f.repo.slotErr, f.repo.findErr, f.repo.swapErr = nil, nil, nil
			}()

			assert.NoError(t, f.srv.Logout(context.Background(), tt.input))
		})
	}
}

func TestSessionService_Authenticate(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	identity, err := f.srv.Authenticate(context.Background(), out.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, out.Identity.ID, identity.ID)
	assert.Equal(t, aliceEmail, identity.Email)
}

func TestSessionService_AuthenticateRejectsTypeConfusion(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &service.Claims{
		Type: service.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   out.Identity.ID.String(),
			Issuer:    f.cfg.Auth.Issuer,
			IssuedAt:  jwt.NewNumericDate(f.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(f.clock.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(f.cfg.SecretKey.Refresh))
	require.NoError(t, err)

	_, err = f.srv.Authenticate(context.Background(), forged)
	requireDomainError(t, err, domainerrors.ErrInvalidToken)

	_, err = f.srv.Authenticate(context.Background(), out.Tokens.RefreshToken)
	requireDomainError(t, err, domainerrors.ErrInvalidToken)
}

func TestSessionService_AuthenticateFailures(t *testing.T) {
	f := newSessionFixture(t, true)

	_, err := f.srv.Authenticate(context.Background(), "")
	requireDomainError(t, err, domainerrors.ErrMissingCredential)

	_, err = f.srv.Authenticate(context.Background(), "garbage")
	requireDomainError(t, err, domainerrors.ErrInvalidToken)

	ghost, err := f.tokens.IssuePair(uuid.New())
	require.NoError(t, err)
	_, err = f.srv.Authenticate(context.Background(), ghost.AccessToken)
	requireDomainError(t, err, domainerrors.ErrInvalidToken)
}

func TestSessionService_ExpiryAndRefreshScenario(t *testing.T) {
	f := newSessionFixture(t, true)
	registered := registerAlice(t, f)
	require.NotNil(t, f.repo.slot(registered.Identity.ID))

	slotBefore := f.repo.slot(registered.Identity.ID)
	_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: "not-the-password"})
	requireDomainError(t, err, domainerrors.ErrInvalidCredentials)
	assert.Equal(t, slotBefore, f.repo.slot(registered.Identity.ID))

	f.clock.Advance(f.cfg.Auth.AccessTokenTTL + time.Second)

	_, err = f.srv.Authenticate(context.Background(), registered.Tokens.AccessToken)
	requireDomainError(t, err, domainerrors.ErrTokenExpired)

	refreshed, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: registered.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, registered.Tokens.AccessToken, refreshed.Tokens.AccessToken)
	assert.NotEqual(t, registered.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	_, err = f.srv.Authenticate(context.Background(), refreshed.Tokens.AccessToken)
	require.NoError(t, err)

	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: registered.Tokens.RefreshToken})
	requireDomainError(t, err, domainerrors.ErrRevokedOrStale)
}

func TestSessionService_DeactivationEndsSession(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	f.repo.setActive(out.Identity.ID, false)

	_, err := f.srv.Authenticate(context.Background(), out.Tokens.AccessToken)
	requireDomainError(t, err, domainerrors.ErrAccountInactive)

	_, err = f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
	requireDomainError(t, err, domainerrors.ErrRevokedOrStale)
}

func TestSessionService_GetProfile(t *testing.T) {
	f := newSessionFixture(t, true)
	out := registerAlice(t, f)

	profile, err := f.srv.GetProfile(context.Background(), out.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Identity.ID, profile.ID)
	assert.Equal(t, "Alice", profile.Name)

	_, err = f.srv.GetProfile(context.Background(), uuid.New())
	requireDomainError(t, err, domainerrors.ErrNotFound)
}

func TestSessionService_DrainEventsOnStop(t *testing.T) {
	f := newSessionFixture(t, true)

	release := make(chan struct{})
	published := make(chan struct{})
	f.publisher.On("PublishIdentityRegistered", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			<-release
			close(published)
		}).
		Return(nil).Once()

	_, err := f.srv.Register(context.Background(), usecase.RegisterInput{Email: aliceEmail, Password: alicePassword})
	require.NoError(t, err)

	t.Run("gives up when the stop deadline passes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.NoError(t, f.srv.drainEvents(ctx))
	})

	t.Run("waits for pending publishes", func(t *testing.T) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			close(release)
		}()

		require.NoError(t, f.srv.drainEvents(context.Background()))

		select {
		case <-published:
		default:
			t.Fatal("drain returned before the event was published")
		}
	})

	f.publisher.AssertExpectations(t)
}

// deactivatingRepo disables the identity right after it is read, as if an
// administrator acted between the session read and the slot write.
type deactivatingRepo struct {
	*memoryIdentityRepo
}

func (r *deactivatingRepo) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	identity, err := r.memoryIdentityRepo.FindByEmail(ctx, email)
	if err == nil {
		r.setActive(identity.ID, false)
	}

	return identity, err
}

func (r *deactivatingRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	identity, err := r.memoryIdentityRepo.FindByID(ctx, id)
	if err == nil {
		r.setActive(identity.ID, false)
	}

	return identity, err
}

func (r *memoryIdentityRepo) isActive(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.identities[id].Active
}

func TestSessionService_SlotWritesKeepConcurrentDeactivation(t *testing.T) {
	t.Run("login", func(t *testing.T) {
		f := newSessionFixture(t, true)
		out := registerAlice(t, f)
		f.srv.identityRepo = &deactivatingRepo{memoryIdentityRepo: f.repo}

		_, err := f.srv.Login(context.Background(), usecase.LoginInput{Email: aliceEmail, Password: alicePassword})
		require.NoError(t, err)

		assert.False(t, f.repo.isActive(out.Identity.ID))
		assert.Equal(t, 0, f.repo.saves)
	})

	t.Run("read-compare-save refresh", func(t *testing.T) {
		f := newSessionFixture(t, false)
		out := registerAlice(t, f)
		f.srv.identityRepo = &deactivatingRepo{memoryIdentityRepo: f.repo}

		_, err := f.srv.Refresh(context.Background(), usecase.RefreshInput{RefreshToken: out.Tokens.RefreshToken})
		require.NoError(t, err)

		assert.False(t, f.repo.isActive(out.Identity.ID))
		assert.Equal(t, 0, f.repo.saves)
	})

	t.Run("logout", func(t *testing.T) {
		f := newSessionFixture(t, true)
		out := registerAlice(t, f)
		f.repo.setActive(out.Identity.ID, false)

		id := out.Identity.ID
		require.NoError(t, f.srv.Logout(context.Background(), usecase.LogoutInput{IdentityID: &id}))

		assert.False(t, f.repo.isActive(id))
		assert.Nil(t, f.repo.slot(id))
		assert.Equal(t, 0, f.repo.saves)
	})
}
