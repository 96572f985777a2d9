package impl

import (
	"context"
	"log/slog"

	deliverycontext "gatekeeper/internal/delivery/context"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

type onboardingService struct {
	identityRepo repository.IdentityRepository
	logger       *slog.Logger
}

// OnboardingServiceParams holds dependencies for OnboardingService, injected by Fx.
type OnboardingServiceParams struct {
	fx.In

	IdentityRepo repository.IdentityRepository
	Logger       *slog.Logger
}

// NewOnboardingService is the constructor for onboardingService.
func NewOnboardingService(params OnboardingServiceParams) usecase.OnboardingUsecase {
	return &onboardingService{
		identityRepo: params.IdentityRepo,
		logger:       params.Logger,
	}
}

func (srv *onboardingService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// HandleIdentityRegistered confirms a new identity is still live and logs the onboarding.
// No welcome message is delivered to the user; there is no mail or push channel behind it.
// Events for identities that were deleted or deactivated in the meantime are acknowledged and skipped.
func (srv *onboardingService) HandleIdentityRegistered(ctx context.Context, event *service.IdentityRegisteredEvent) error {
	if event == nil {
		return errors.Wrap(domainerrors.ErrValidationFailed, "empty event")
	}

	identityID, err := uuid.Parse(event.IdentityID)
	if err != nil {
		return errors.Wrap(domainerrors.ErrValidationFailed.WithDetails("identity_id must be a uuid"), "bad event payload")
	}

	identity, err := srv.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			srv.log(ctx).Info("Skipping onboarding for missing identity",
				slog.String("identity_id", event.IdentityID),
				slog.String("event_id", event.EventID),
			)

			return nil
		}

		return errors.Wrap(err, "failed to load identity for onboarding")
	}

	if !identity.Active {
		srv.log(ctx).Info("Skipping onboarding for inactive identity", slog.String("identity_id", event.IdentityID))

		return nil
	}

	srv.log(ctx).Info("Onboarding logged, no message sent",
		slog.String("identity_id", identity.ID.String()),
		slog.String("email", identity.Email),
		slog.String("event_id", event.EventID),
		slog.Time("registered_at", event.RegisteredAt),
	)

	return nil
}
