package fx

import (
	"context"
	"database/sql"

	"arena-tracker/internal/api"
	"arena-tracker/internal/config"
	"arena-tracker/internal/database"
	"arena-tracker/internal/logger"
	"arena-tracker/internal/ratelimit"
	"arena-tracker/internal/repository"
	"arena-tracker/internal/server"
	"arena-tracker/internal/service"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Module wires the tracker engine and its stores.
var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(database.NewCache),
	// repos
	fx.Provide(repository.NewSettingsRepository),
	fx.Provide(repository.NewHistoryRepository),
	fx.Provide(repository.NewMatchCacheRepository),
	// api client
	fx.Provide(ratelimit.NewClock),
	fx.Provide(ratelimit.NewLimiter),
	fx.Provide(fx.Annotate(api.NewRiotClient, fx.As(new(service.RiotAPI)))),
	// svc
	fx.Provide(service.NewBackupService),
	fx.Provide(service.NewEngine),
	fx.Invoke(registerEngine),
)

// RelayModule wires the token-holding relay. It needs no local storage.
var RelayModule = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(server.NewRelayServer),
)

func registerEngine(lc fx.Lifecycle, engine *service.Engine, db *sql.DB, cache *badger.DB, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return engine.Load(ctx)
		},
		OnStop: func(ctx context.Context) error {
			engine.Close()

			if err := cache.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing match cache")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})
}
