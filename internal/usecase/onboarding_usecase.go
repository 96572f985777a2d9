package usecase

import (
	"context"

	"gatekeeper/internal/domain/service"
)

// OnboardingUsecase consumes "identity registered" events delivered to the worker.
type OnboardingUsecase interface {
	HandleIdentityRegistered(ctx context.Context, event *service.IdentityRegisteredEvent) error
}
