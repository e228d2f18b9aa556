// Package api defines the HTTP handlers for the ingress control surface:
// health, presence query, targeted delivery, and broadcast emission.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
	"github.com/tinywideclouds/go-notify-relay/pkg/response"
)

// Deliverer is the slice of the dispatcher the handlers need.
type Deliverer interface {
	Deliver(ctx context.Context, req relay.DeliveryRequest) (bool, error)
	Broadcast(ctx context.Context, event string, data any) error
}

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	dispatcher Deliverer
	registry   relay.Registry
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewAPI creates a new, stateless API handler.
func NewAPI(dispatcher Deliverer, registry relay.Registry, logger zerolog.Logger) *API {
	return &API{
		dispatcher: dispatcher,
		registry:   registry,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "API").Logger(),
	}
}

type emitNotificationRequest struct {
	UserID       string         `json:"userId" validate:"required"`
	Notification map[string]any `json:"notification" validate:"required"`
}

type emitNotificationResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Delivered bool   `json:"delivered"`
}

type emitRequest struct {
	Event string         `json:"event" validate:"required"`
	Data  map[string]any `json:"data" validate:"required"`
}

// HealthHandler reports process liveness. No auth, no side effects.
func (a *API) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ConnectedUsersHandler returns a read-only snapshot of registered users,
// consistent only as of call time.
func (a *API) ConnectedUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.registry.Users(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to snapshot registry.")
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to list connected users")
		return
	}
	if users == nil {
		users = []string{}
	}
	sort.Strings(users)
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}

// EmitNotificationHandler delivers a payload to one user's live connection.
// The delivered flag reflects online/offline; an offline target is still a
// 200, distinct from validation failures (400) and dispatch failures (500).
func (a *API) EmitNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req emitNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to decode emit-notification body.")
		response.WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		a.logger.Warn().Err(err).Msg("Rejected emit-notification request.")
		response.WriteJSONError(w, http.StatusBadRequest,
			"Missing required fields: userId and notification are required")
		return
	}

	delivered, err := a.dispatcher.Deliver(r.Context(), relay.DeliveryRequest{
		UserID:  req.UserID,
		Payload: req.Notification,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("user", req.UserID).Msg("Dispatch failed.")
		response.WriteJSON(w, http.StatusInternalServerError, response.ErrorBody{
			Success: false,
			Message: "Failed to emit notification",
			Error:   err.Error(),
		})
		return
	}

	message := "Notification delivered"
	if !delivered {
		message = "User is not connected; notification was not delivered"
	}
	response.WriteJSON(w, http.StatusOK, emitNotificationResponse{
		Success:   true,
		Message:   message,
		Delivered: delivered,
	})
}

// EmitHandler broadcasts a named event to every connected client.
func (a *API) EmitHandler(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to decode emit body.")
		response.WriteJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		a.logger.Warn().Err(err).Msg("Rejected emit request.")
		response.WriteJSONError(w, http.StatusBadRequest,
			"Missing required fields: event and data are required")
		return
	}

	if err := a.dispatcher.Broadcast(r.Context(), req.Event, req.Data); err != nil {
		a.logger.Error().Err(err).Str("event", req.Event).Msg("Broadcast failed.")
		response.WriteJSON(w, http.StatusInternalServerError, response.ErrorBody{
			Success: false,
			Message: "Failed to emit event",
			Error:   err.Error(),
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Event emitted",
	})
}
