package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinywideclouds/go-notify-relay/internal/app"
	"github.com/tinywideclouds/go-notify-relay/internal/dispatch"
	"github.com/tinywideclouds/go-notify-relay/internal/platform/redisreg"
	"github.com/tinywideclouds/go-notify-relay/internal/realtime"
	"github.com/tinywideclouds/go-notify-relay/internal/registry"
	"github.com/tinywideclouds/go-notify-relay/pkg/middleware"
	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
	"github.com/tinywideclouds/go-notify-relay/relayservice"
	"github.com/tinywideclouds/go-notify-relay/relayservice/config"
)

func main() {
	// 1. Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("service", "go-notify-relay").Logger()

	// 2. Load configuration from the environment (.env is optional)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 3. Create the presence registry for the configured backend
	reg, err := newRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize presence registry")
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close presence registry")
		}
	}()

	// 4. Create the auth middleware for the transport endpoints
	authMiddleware, err := newAuthMiddleware(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize auth middleware")
	}

	// 5. Create the two main services
	connManager, err := realtime.NewConnectionManager(
		realtime.Config{
			Port:              cfg.WebSocketPort,
			HeartbeatInterval: cfg.HeartbeatInterval,
			HeartbeatTimeout:  cfg.HeartbeatTimeout,
			Cors:              cfg.Cors,
		},
		authMiddleware,
		reg,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Connection Manager")
	}

	dispatcher, err := dispatch.NewDispatcher(reg, connManager, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Dispatcher")
	}

	ingressService, err := relayservice.New(
		cfg,
		dispatcher,
		reg,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Ingress API service")
	}

	// 6. Run the application
	app.Run(context.Background(), logger, ingressService, connManager)
}

// newRegistry selects the presence registry backend. Memory is the
// default; Redis enables a shared registry across instances.
func newRegistry(cfg *config.AppConfig, logger zerolog.Logger) (relay.Registry, error) {
	switch cfg.RegistryBackend {
	case config.BackendRedis:
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis presence registry.")
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redisreg.New(client, logger)
	default:
		logger.Info().Msg("Using in-memory presence registry.")
		return registry.NewMemory(), nil
	}
}

// newAuthMiddleware returns JWT validation when a secret is configured,
// and a pass-through otherwise (the relay trusts its deployment).
func newAuthMiddleware(cfg *config.AppConfig, logger zerolog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("No JWT secret configured; transport endpoints are unauthenticated.")
		return middleware.NoopAuth(""), nil
	}
	return middleware.NewJWTAuthMiddleware(cfg.JWTSecret)
}
