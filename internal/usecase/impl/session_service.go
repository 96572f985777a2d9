// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/lifecycle"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// dummyPassword is hashed once and checked against when the email is unknown,
// so a login for a missing identity costs the same as a wrong password.
const dummyPassword = "gatekeeper-timing-equalizer"

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	identityRepo   repository.IdentityRepository
	hasher         service.PasswordHasher
	tokenService   service.TokenService
	publisher      service.EventPublisher
	strictRotation bool
	logger         *slog.Logger
	now            func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string

	// events tracks detached publishes so tests (and shutdown) can wait for them.
	events sync.WaitGroup
}

// SessionServiceParams holds dependencies for SessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	Lc             fx.Lifecycle `optional:"true"`
	IdentityRepo   repository.IdentityRepository
	Hasher         service.PasswordHasher
	TokenService   service.TokenService
	EventPublisher service.EventPublisher
	Config         *config.Config
	Logger         *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	strictRotation := true
	if params.Config != nil && params.Config.Auth != nil {
		strictRotation = params.Config.Auth.StrictRotation
	}

	srv := &sessionService{
		identityRepo:   params.IdentityRepo,
		hasher:         params.Hasher,
		tokenService:   params.TokenService,
		publisher:      params.EventPublisher,
		strictRotation: strictRotation,
		logger:         params.Logger,
		now:            time.Now,
	}

	if params.Lc != nil {
		// Runs before the publisher is closed.
		params.Lc.Append(fx.Hook{
			OnStop: srv.drainEvents,
		})
	}

	return srv
}

// drainEvents waits for detached publishes until ctx is done.
func (srv *sessionService) drainEvents(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		srv.events.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		srv.logger.Warn("Shutdown before pending identity events were published")

		return nil
	}
}

func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates the identity with its first session already bound to the slot.
func (srv *sessionService) Register(ctx context.Context, input usecase.RegisterInput) (*usecase.SessionOutput, error) {
	email := entity.NormalizeEmail(input.Email)

	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		return nil, errors.Wrap(err, "password rejected")
	}

	_, err := srv.identityRepo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		srv.log(ctx).Info("Registration rejected, email taken", slog.String("email", email))

		return nil, errors.Wrap(domainerrors.ErrDuplicateIdentity, "email already registered")
	case !errors.Is(err, repository.ErrIdentityNotFound):
		return nil, errors.Wrap(err, "failed to check existing identity")
	}

	hash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate identity id")
	}

	tokens, err := srv.tokenService.IssuePair(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue tokens")
	}

	now := srv.now()
	identity := &entity.Identity{
		ID:           id,
		Email:        email,
		Name:         input.Name,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
	}
	identity.StartSession(tokens.RefreshToken, now)

	if err := srv.identityRepo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, errors.Wrap(domainerrors.ErrDuplicateIdentity, "email registered concurrently")
		}

		return nil, errors.Wrap(err, "failed to create identity")
	}

	srv.log(ctx).Info("Identity registered", slog.String("identity_id", identity.ID.String()))
	srv.publishRegistered(ctx, identity)

	return &usecase.SessionOutput{Identity: identity.Public(), Tokens: tokens}, nil
}

// Login verifies the password and overwrites the refresh slot, ending any previous session.
func (srv *sessionService) Login(ctx context.Context, input usecase.LoginInput) (*usecase.SessionOutput, error) {
	email := entity.NormalizeEmail(input.Email)

	identity, err := srv.identityRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(err, "failed to find identity")
		}

		srv.hasher.Check(input.Password, srv.timingHash())
		srv.log(ctx).Warn("Login failed", slog.String("email", email), slog.String("reason", "unknown email"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "identity not found")
	}

	if !srv.hasher.Check(input.Password, identity.PasswordHash) {
		srv.log(ctx).Warn("Login failed", slog.String("email", email), slog.String("reason", "password mismatch"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "password mismatch")
	}

	if !identity.Active {
		srv.log(ctx).Warn("Login refused for disabled account", slog.String("identity_id", identity.ID.String()))

		return nil, errors.Wrap(domainerrors.ErrAccountDisabled, "identity inactive")
	}

	tokens, err := srv.tokenService.IssuePair(identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue tokens")
	}

	// Only the slot is written; a deactivation racing this login must survive it.
	if err := srv.identityRepo.SetRefreshToken(ctx, identity.ID, &tokens.RefreshToken); err != nil {
		return nil, errors.Wrap(err, "failed to store refresh slot")
	}
	identity.StartSession(tokens.RefreshToken, srv.now())

	srv.log(ctx).Info("Login succeeded", slog.String("identity_id", identity.ID.String()))

	return &usecase.SessionOutput{Identity: identity.Public(), Tokens: tokens}, nil
}

// Refresh rotates the session: the presented token must be the one in the slot,
// and is replaced by a freshly issued one.
func (srv *sessionService) Refresh(ctx context.Context, input usecase.RefreshInput) (*usecase.SessionOutput, error) {
	if input.RefreshToken == "" {
		return nil, errors.Wrap(domainerrors.ErrMissingCredential, "no refresh token")
	}

	claims, err := srv.tokenService.Verify(input.RefreshToken, service.RefreshToken)
	if err != nil {
		srv.log(ctx).Warn("Refresh token rejected", slog.String("kind", tokenErrorKind(err)))

		return nil, errors.Wrap(domainerrors.ErrInvalidRefresh.WithDetails(tokenErrorKind(err)), "refresh verification failed")
	}

	identityID, err := claims.IdentityID()
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidRefresh, "bad subject")
	}

	identity, err := srv.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(domainerrors.ErrRevokedOrStale, "identity no longer exists")
		}

		return nil, errors.Wrap(err, "failed to find identity")
	}

	if !identity.SessionState().Holds(input.RefreshToken) {
		srv.log(ctx).Warn("Stale refresh token presented",
			slog.String("identity_id", identity.ID.String()),
			slog.String("session", identity.SessionState().Status.String()),
		)

		return nil, errors.Wrap(domainerrors.ErrRevokedOrStale, "refresh slot mismatch")
	}

	if !identity.Active {
		return nil, errors.Wrap(domainerrors.ErrRevokedOrStale, "identity inactive")
	}

	tokens, err := srv.tokenService.IssuePair(identity.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue tokens")
	}

	if srv.strictRotation {
		presented := input.RefreshToken
		swapped, err := srv.identityRepo.SwapRefreshToken(ctx, identity.ID, &presented, &tokens.RefreshToken)
		if err != nil {
			return nil, errors.Wrap(err, "failed to rotate refresh slot")
		}
		if !swapped {
			srv.log(ctx).Warn("Concurrent refresh lost the race", slog.String("identity_id", identity.ID.String()))

			return nil, errors.Wrap(domainerrors.ErrRevokedOrStale, "refresh slot changed concurrently")
		}
		identity.StartSession(tokens.RefreshToken, srv.now())
	} else {
		if err := srv.identityRepo.SetRefreshToken(ctx, identity.ID, &tokens.RefreshToken); err != nil {
			return nil, errors.Wrap(err, "failed to rotate refresh slot")
		}
		identity.StartSession(tokens.RefreshToken, srv.now())
	}

	return &usecase.SessionOutput{Identity: identity.Public(), Tokens: tokens}, nil
}

// Logout clears the refresh slot. Failures are logged, never returned.
func (srv *sessionService) Logout(ctx context.Context, input usecase.LogoutInput) error {
	if input.IdentityID != nil {
		srv.revokeIdentity(ctx, *input.IdentityID)

		return nil
	}

	if input.RefreshToken == "" {
		return nil
	}

	claims, err := srv.tokenService.VerifyIgnoringExpiry(input.RefreshToken, service.RefreshToken)
	if err != nil {
		srv.log(ctx).Debug("Logout with unusable refresh token", slog.String("kind", tokenErrorKind(err)))

		return nil
	}

	identityID, err := claims.IdentityID()
	if err != nil {
		return nil
	}

	// Without the guard, only the current holder of the slot may end the session.
	presented := input.RefreshToken
	swapped, err := srv.identityRepo.SwapRefreshToken(ctx, identityID, &presented, nil)
	if err != nil {
		srv.log(ctx).Error("Failed to clear refresh slot",
			slog.String("identity_id", identityID.String()),
			slog.Any("error", err),
		)

		return nil
	}
	if swapped {
		srv.log(ctx).Info("Logged out", slog.String("identity_id", identityID.String()))
	}

	return nil
}

func (srv *sessionService) revokeIdentity(ctx context.Context, identityID uuid.UUID) {
	if err := srv.identityRepo.SetRefreshToken(ctx, identityID, nil); err != nil {
		if !errors.Is(err, repository.ErrIdentityNotFound) {
			srv.log(ctx).Error("Failed to clear refresh slot",
				slog.String("identity_id", identityID.String()),
				slog.Any("error", err),
			)
		}

		return
	}

	srv.log(ctx).Info("Logged out", slog.String("identity_id", identityID.String()))
}

// Authenticate is the access-guard: verify the access token, then require a live, active identity.
func (srv *sessionService) Authenticate(ctx context.Context, accessToken string) (*entity.PublicIdentity, error) {
	if accessToken == "" {
		return nil, errors.Wrap(domainerrors.ErrMissingCredential, "no access token")
	}

	claims, err := srv.tokenService.Verify(accessToken, service.AccessToken)
	if err != nil {
		var tokenErr *service.TokenError
		if errors.As(err, &tokenErr) && tokenErr.Kind == service.TokenExpired {
			return nil, errors.Wrap(domainerrors.ErrTokenExpired, "access token expired")
		}

		return nil, errors.Wrap(domainerrors.ErrInvalidToken.WithDetails(tokenErrorKind(err)), "access verification failed")
	}

	identityID, err := claims.IdentityID()
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "bad subject")
	}

	identity, err := srv.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(domainerrors.ErrInvalidToken, "identity no longer exists")
		}

		return nil, errors.Wrap(err, "failed to find identity")
	}

	if !identity.Active {
		return nil, errors.Wrap(domainerrors.ErrAccountInactive, "identity inactive")
	}

	return identity.Public(), nil
}

// GetProfile returns the public view of an identity.
func (srv *sessionService) GetProfile(ctx context.Context, identityID uuid.UUID) (*entity.PublicIdentity, error) {
	identity, err := srv.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, errors.Wrap(domainerrors.ErrNotFound, "identity not found")
		}

		return nil, errors.Wrap(err, "failed to find identity")
	}

	return identity.Public(), nil
}

// publishRegistered notifies the onboarding worker on a detached goroutine.
// The request context's values (logger, request id) are kept, its cancellation is not.
func (srv *sessionService) publishRegistered(ctx context.Context, identity *entity.Identity) {
	if srv.publisher == nil {
		return
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		srv.log(ctx).Warn("Failed to generate event id", slog.Any("error", err))

		return
	}

	event := &service.IdentityRegisteredEvent{
		RequestID:    deliverycontext.GetRequestIDFromContext(ctx),
		EventID:      eventID.String(),
		IdentityID:   identity.ID.String(),
		Email:        identity.Email,
		Name:         identity.Name,
		RegisteredAt: identity.CreatedAt,
	}

	detached := context.WithoutCancel(ctx)
	srv.events.Add(1)
	go func() {
		defer srv.events.Done()

		publishCtx, cancel := context.WithTimeout(detached, lifecycle.EventPublishTimeout)
		defer cancel()

		if err := srv.publisher.PublishIdentityRegistered(publishCtx, event); err != nil {
			srv.log(detached).Warn("Failed to publish identity registered event",
				slog.String("identity_id", event.IdentityID),
				slog.Any("error", err),
			)
		}
	}()
}

// timingHash lazily hashes dummyPassword with the configured cost.
func (srv *sessionService) timingHash() string {
	srv.dummyHashOnce.Do(func() {
		hash, err := srv.hasher.Hash(dummyPassword)
		if err != nil {
			srv.logger.Warn("Failed to prepare timing hash", slog.Any("error", err))

			return
		}
		srv.dummyHash = hash
	})

	return srv.dummyHash
}

func tokenErrorKind(err error) string {
	var tokenErr *service.TokenError
	if errors.As(err, &tokenErr) {
		return string(tokenErr.Kind)
	}

	return string(service.TokenMalformed)
}
