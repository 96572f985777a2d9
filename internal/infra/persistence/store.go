// Package persistence selects the identity store backing the services.
package persistence

import (
	"log/slog"

	"gatekeeper/config"
	"gatekeeper/internal/domain/constants"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/errors"
	"gatekeeper/internal/infra/persistence/postgres"
	redisstore "gatekeeper/internal/infra/persistence/redis"

	"go.uber.org/fx"
)

// StoreParams defines the required parameters
type StoreParams struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// NewIdentityRepository opens the store named by Store.Driver and returns its repository.
func NewIdentityRepository(params StoreParams) (repository.IdentityRepository, error) {
	switch params.Config.Store.Driver {
	case constants.StoreDriverPostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lifecycle,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return nil, err
		}
		params.Logger.Info("Using PostgreSQL identity store")

		return postgres.NewIdentityRepository(db), nil

	case constants.StoreDriverRedis:
		client, err := redisstore.New(redisstore.Params{
			Lifecycle: params.Lifecycle,
			Config:    params.Config,
			Logger:    params.Logger,
		})
		if err != nil {
			return nil, err
		}
		params.Logger.Info("Using Redis identity store")

		return redisstore.NewIdentityRepository(client, params.Config), nil

	default:
		return nil, errors.Errorf("unknown store driver: %s", params.Config.Store.Driver)
	}
}
