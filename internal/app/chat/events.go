/*
Package chat contains the realtime delivery and presence subsystem: the
registry of live connections, the presence broadcaster, and the router that
pushes freshly persisted messages to a connected receiver.
*/
package chat

import (
	"encoding/json"
)

// EventType identifies a server-to-client event on the live connection.
type EventType string

const (
	// EventPresenceChanged carries the full set of currently online user IDs.
	EventPresenceChanged EventType = "presence_changed"

	// EventMessageReceived carries a newly delivered message.
	EventMessageReceived EventType = "message_received"
)

// Envelope is the wire format for all events pushed over a connection.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PresencePayload is the payload of EventPresenceChanged.
type PresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// NewEvent marshals an envelope with the given type and payload into the
// bytes written to the socket. The whole event is marshaled once so every
// receiver observes the complete object, never a partial write.
func NewEvent(eventType EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Type:    eventType,
		Payload: raw,
	})
}
