// Package relayservice wires the ingress API into an HTTP server and
// manages its lifecycle.
package relayservice

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-notify-relay/internal/api"
	"github.com/tinywideclouds/go-notify-relay/pkg/middleware"
	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
	"github.com/tinywideclouds/go-notify-relay/relayservice/config"
)

// Wrapper runs the ingress API server for the trusted backend.
type Wrapper struct {
	server     *http.Server
	apiHandler *api.API
	logger     zerolog.Logger
	// httpReadyChan closes once the listener is active, so callers can
	// sequence readiness on it.
	httpReadyChan chan struct{}
	addr          string
}

// New creates and wires up the ingress service.
func New(
	cfg *config.AppConfig,
	dispatcher api.Deliverer,
	registry relay.Registry,
	logger zerolog.Logger,
) (*Wrapper, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	apiHandler := api.NewAPI(dispatcher, registry, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", apiHandler.HealthHandler)
	mux.HandleFunc("GET /connected-users", apiHandler.ConnectedUsersHandler)
	mux.HandleFunc("POST /emit-notification", apiHandler.EmitNotificationHandler)
	mux.HandleFunc("POST /emit", apiHandler.EmitHandler)

	handler := middleware.Cors(cfg.Cors)(mux)

	return &Wrapper{
		server: &http.Server{
			Addr:    net.JoinHostPort(cfg.Host, cfg.APIPort),
			Handler: handler,
		},
		apiHandler:    apiHandler,
		logger:        logger.With().Str("component", "IngressService").Logger(),
		httpReadyChan: make(chan struct{}),
	}, nil
}

// Handler exposes the wired handler chain, primarily for tests.
func (w *Wrapper) Handler() http.Handler {
	return w.server.Handler
}

// Ready closes once the HTTP listener is active.
func (w *Wrapper) Ready() <-chan struct{} {
	return w.httpReadyChan
}

// Addr returns the bound listen address. Valid only after Ready.
func (w *Wrapper) Addr() string {
	return w.addr
}

// Start binds the listener, signals readiness, and serves until Shutdown.
func (w *Wrapper) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.server.Addr)
	if err != nil {
		return fmt.Errorf("ingress listener failed: %w", err)
	}
	w.addr = listener.Addr().String()
	w.logger.Info().Str("addr", w.addr).Msg("Ingress API server starting...")
	close(w.httpReadyChan)

	if err := w.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingress server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down ingress service...")
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Ingress server shutdown failed.")
		return err
	}
	w.logger.Info().Msg("Ingress service shut down.")
	return nil
}
