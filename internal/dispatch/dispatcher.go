// Package dispatch routes inbound delivery requests from the trusted
// backend to the correct live connection group.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
)

// Dispatcher reads the presence registry and emits to the transport
// layer. It never mutates the registry and holds no state of its own:
// delivery is fire-and-forget, with no retry and no buffering.
type Dispatcher struct {
	registry relay.Registry
	emitter  relay.Emitter
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given registry and emitter.
func NewDispatcher(registry relay.Registry, emitter relay.Emitter, logger zerolog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter cannot be nil")
	}
	return &Dispatcher{
		registry: registry,
		emitter:  emitter,
		logger:   logger.With().Str("component", "Dispatcher").Logger(),
	}, nil
}

// Deliver emits the request's payload to the target user's logical room.
// An offline target is a successful non-delivery (false, nil), distinct
// from a transport emission failure, which is returned as an error.
func (d *Dispatcher) Deliver(ctx context.Context, req relay.DeliveryRequest) (bool, error) {
	event := req.Event
	if event == "" {
		event = relay.NotificationEvent
	}
	log := d.logger.With().Str("user", req.UserID).Str("event", event).Logger()

	_, ok, err := d.registry.Lookup(ctx, req.UserID)
	if err != nil {
		return false, fmt.Errorf("presence lookup failed for %q: %w", req.UserID, err)
	}
	if !ok {
		log.Info().Msg("User has no active connection; notification not delivered.")
		return false, nil
	}

	delivered, err := d.emitter.EmitToUser(req.UserID, event, req.Payload)
	if err != nil {
		log.Error().Err(err).Msg("Transport emission failed.")
		return false, fmt.Errorf("failed to emit %q to user %q: %w", event, req.UserID, err)
	}
	if delivered == 0 {
		// The registry entry can outrun the room membership for one event
		// loop turn during a disconnect; treat it as offline.
		log.Info().Msg("Room empty despite registry entry; notification not delivered.")
		return false, nil
	}

	log.Info().Int("sessions", delivered).Msg("Notification delivered.")
	return true, nil
}

// Broadcast emits a named event to every connected session.
func (d *Dispatcher) Broadcast(_ context.Context, event string, data any) error {
	delivered, err := d.emitter.Broadcast(event, data)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event).Msg("Broadcast emission failed.")
		return fmt.Errorf("failed to broadcast %q: %w", event, err)
	}
	d.logger.Info().Str("event", event).Int("sessions", delivered).Msg("Event broadcast.")
	return nil
}
