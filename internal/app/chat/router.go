/*
Package chat contains the realtime delivery and presence subsystem.

This file implements the delivery router: the best-effort live push of a
freshly persisted message to its receiver, when the receiver currently holds
a connection.
*/
package chat

import (
	"github.com/rs/zerolog"

	"quickchat/internal/app/message"
	"quickchat/internal/pkg/logx"
)

// Router pushes newly sent messages to connected receivers. Delivery is
// strictly best-effort: the message is already durable when Route is called,
// so any push failure is logged and swallowed — the receiver recovers it via
// history fetch.
type Router struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewRouter constructs a Router over the shared registry.
func NewRouter(registry *Registry) *Router {
	routerLogger := logx.Logger().With().Str("component", "Router").Logger()

	return &Router{
		registry: registry,
		logger:   routerLogger,
	}
}

// Route pushes the message to the receiver's live connection if one exists.
// Precondition: the message has already been persisted. Returns whether the
// push was enqueued. Never retries.
func (rt *Router) Route(msg message.Message) bool {
	client := rt.registry.Lookup(msg.ReceiverID)
	if client == nil {
		rt.logger.Debug().
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Msg("Receiver offline, no live push.")
		return false
	}

	event, err := NewEvent(EventMessageReceived, msg)
	if err != nil {
		rt.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to marshal message event.")
		return false
	}

	if err := client.Enqueue(event); err != nil {
		// Stale handle or saturated queue: treated as receiver offline.
		rt.logger.Debug().
			Err(err).
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Msg("Live push dropped.")
		return false
	}

	return true
}
