package main

import (
	"context"
	"fmt"
	"net/http"

	"arena-tracker/internal/config"
	"arena-tracker/internal/constants"
	fxmodules "arena-tracker/internal/fx"
	"arena-tracker/internal/middleware"
	"arena-tracker/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.RelayModule,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	relay *server.RelayServer,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			"X-App-Rate-Limit",
			"X-App-Rate-Limit-Count",
			"X-Method-Rate-Limit",
			"X-Method-Rate-Limit-Count",
			"Retry-After",
		},
	})

	mux.Handle(server.RelayPath, middleware.RequestID(logger)(c.Handler(relay)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.RelayPort),
		Handler:           mux,
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.RiotAPIToken == "" {
				logger.Warn().Msg("RIOT_API_TOKEN is not set, every request will be rejected")
			}
			go func() {
				logger.Info().Str("addr", srv.Addr).Str("upstream", cfg.RiotAPIBase).Msg("relay starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("relay failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("relay shutdown failed")
				return err
			}
			logger.Info().Msg("relay stopped gracefully")
			return nil
		},
	})
}
