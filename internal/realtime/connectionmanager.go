// Package realtime provides components for managing real-time client
// connections: the websocket and SSE transports, per-user logical rooms,
// and the presence bookkeeping tied to connection lifecycle.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-notify-relay/pkg/middleware"
	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
	"github.com/tinywideclouds/go-notify-relay/pkg/response"
)

// Config holds the transport settings for the connection manager.
type Config struct {
	Port string
	// HeartbeatInterval is how often the server pings each connection.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout disconnects a connection silent for this long.
	// Must exceed the interval.
	HeartbeatTimeout time.Duration
	Cors             middleware.CorsConfig
}

// ConnectionManager manages all active transport sessions and user
// presence. It runs its own dedicated HTTP server, separate from the
// ingress API.
type ConnectionManager struct {
	server   *http.Server
	upgrader websocket.Upgrader
	registry relay.Registry
	rooms    *roomSet
	sessions sync.Map // connID -> session
	cfg      Config
	logger   zerolog.Logger
	// instanceID distinguishes this process in logs when the registry is
	// shared across instances.
	instanceID string
}

// NewConnectionManager creates and wires up the transport server.
func NewConnectionManager(
	cfg Config,
	authMiddleware func(http.Handler) http.Handler,
	registry relay.Registry,
	logger zerolog.Logger,
) (*ConnectionManager, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		return nil, fmt.Errorf("heartbeat timeout (%s) must exceed heartbeat interval (%s)",
			cfg.HeartbeatTimeout, cfg.HeartbeatInterval)
	}

	instanceID := uuid.NewString()
	cmLogger := logger.With().Str("component", "ConnectionManager").Str("instance", instanceID).Logger()

	cm := &ConnectionManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.Cors.OriginAllowed(r.Header.Get("Origin"))
			},
		},
		registry:   registry,
		rooms:      newRoomSet(),
		cfg:        cfg,
		logger:     cmLogger,
		instanceID: instanceID,
	}

	mux := http.NewServeMux()
	mux.Handle("/connect", authMiddleware(http.HandlerFunc(cm.connectHandler)))
	mux.Handle("/sse", authMiddleware(http.HandlerFunc(cm.sseHandler)))
	mux.HandleFunc("GET /health", cm.healthHandler)
	cm.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	return cm, nil
}

// Handler exposes the wired transport handler chain, primarily for tests.
func (cm *ConnectionManager) Handler() http.Handler {
	return cm.server.Handler
}

// Start runs the HTTP server for transport connections.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	cm.logger.Info().Str("addr", cm.server.Addr).Msg("Transport server starting...")
	if err := cm.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transport server failed: %w", err)
	}
	return nil
}

// Shutdown closes every live session with a clean close frame, then stops
// the HTTP server.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.logger.Info().Msg("Shutting down transport service...")

	cm.sessions.Range(func(_, value any) bool {
		sess := value.(session)
		_ = sess.Close("server shutting down")
		return true
	})

	if err := cm.server.Shutdown(ctx); err != nil {
		cm.logger.Error().Err(err).Msg("Transport server shutdown failed.")
		return err
	}
	cm.logger.Info().Msg("Transport service shut down.")
	return nil
}

func (cm *ConnectionManager) healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// connectHandler upgrades a new HTTP request to a websocket and manages
// its lifecycle. The session stays connected-but-unregistered, receiving
// no deliveries, until a register frame arrives.
func (cm *ConnectionManager) connectHandler(w http.ResponseWriter, r *http.Request) {
	authedID, _ := middleware.GetUserIDFromContext(r.Context())

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.logger.Error().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	sess := newWSSession(conn, authedID, cm.logger)
	cm.sessions.Store(sess.ID(), sess)
	cm.logger.Info().Str("connection", sess.ID()).Msg("Client connected via WebSocket.")

	go sess.writePump(cm.cfg.HeartbeatInterval)
	sess.readPump(cm, cm.cfg.HeartbeatTimeout)

	// Read loop exit means the client disconnected or timed out.
	cm.Unregister(sess)
	_ = sess.Close("")
}

// sseHandler serves the fallback polling-mode transport. Identity arrives
// in the query string and the session registers immediately.
func (cm *ConnectionManager) sseHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing 'user' query parameter", http.StatusBadRequest)
		return
	}
	if authedID, ok := middleware.GetUserIDFromContext(r.Context()); ok && authedID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := newSSESession(w, flusher, cm.logger)
	cm.sessions.Store(sess.ID(), sess)
	cm.logger.Info().Str("connection", sess.ID()).Str("user", userID).Msg("Client connected via SSE.")

	cm.Register(sess, userID)
	sess.keepAlive(r.Context().Done(), cm.cfg.HeartbeatInterval)

	cm.Unregister(sess)
	_ = sess.Close("")
}

// Register binds a user identity to a session. If the identity already
// maps to a different live connection, that connection is evicted first,
// guaranteeing a single active session per user.
func (cm *ConnectionManager) Register(sess session, userID string) {
	if userID == "" {
		// Registration is a one-way control message; there is no response
		// channel, so an empty identity is logged and dropped.
		cm.logger.Warn().Str("connection", sess.ID()).Msg("Ignoring register with empty user id.")
		return
	}
	ctx := context.Background()

	// A session re-registering under a new identity releases the old one.
	if prev := sess.UserID(); prev != "" && prev != userID {
		cm.rooms.Leave(relay.UserRoom(prev), sess.ID())
		if _, err := cm.registry.Remove(ctx, prev, sess.ID()); err != nil {
			cm.logger.Error().Err(err).Str("user", prev).Msg("Failed to release previous registration.")
		}
	}

	evicted, err := cm.registry.Set(ctx, userID, sess.ID())
	if err != nil {
		cm.logger.Error().Err(err).Str("user", userID).Msg("Failed to set user presence.")
		return
	}
	if evicted != "" {
		cm.rooms.Leave(relay.UserRoom(userID), evicted)
		if old, ok := cm.sessions.Load(evicted); ok {
			_ = old.(session).Close("superseded by a newer registration")
		}
		cm.logger.Info().Str("user", userID).Str("evicted", evicted).
			Msg("Evicted stale connection for re-registered user.")
	}

	sess.setUserID(userID)
	cm.rooms.Join(relay.UserRoom(userID), sess)
	cm.logger.Info().Str("user", userID).Str("connection", sess.ID()).Msg("User registered.")
}

// Unregister removes a session and conditionally deletes its presence
// entry. If a newer connection has already overwritten the mapping, the
// entry is left alone; calling it twice for the same session is a no-op.
func (cm *ConnectionManager) Unregister(sess session) {
	cm.sessions.Delete(sess.ID())

	userID := sess.UserID()
	if userID == "" {
		cm.logger.Info().Str("connection", sess.ID()).Msg("Unregistered client disconnected.")
		return
	}
	cm.rooms.Leave(relay.UserRoom(userID), sess.ID())

	removed, err := cm.registry.Remove(context.Background(), userID, sess.ID())
	if err != nil {
		cm.logger.Error().Err(err).Str("user", userID).Msg("Failed to delete user presence.")
		return
	}
	if !removed {
		cm.logger.Debug().Str("user", userID).Str("connection", sess.ID()).
			Msg("Stale disconnect; presence already owned by a newer connection.")
		return
	}
	cm.logger.Info().Str("user", userID).Str("connection", sess.ID()).Msg("User disconnected.")
}

// EmitToUser implements relay.Emitter by emitting to the user's logical room.
func (cm *ConnectionManager) EmitToUser(userID, event string, data any) (int, error) {
	return cm.rooms.Emit(relay.UserRoom(userID), event, data)
}

// Broadcast implements relay.Emitter across every connected session,
// registered or not.
func (cm *ConnectionManager) Broadcast(event string, data any) (int, error) {
	var (
		delivered int
		errs      []error
	)
	cm.sessions.Range(func(_, value any) bool {
		if err := value.(session).Emit(event, data); err != nil {
			errs = append(errs, err)
		} else {
			delivered++
		}
		return true
	})
	return delivered, errors.Join(errs...)
}
