/*
Package client is the Go SDK for the QuickChat server.

It bundles a plain HTTP API client for the REST surface and an Engine that
maintains a live WebSocket connection, local conversation state, unseen
counters and the online-user set, reconnecting automatically within a bounded
number of attempts.
*/
package client

import (
	"encoding/json"
	"time"
)

// Message mirrors the server's direct-message wire shape.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// User mirrors the server's user profile wire shape.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Envelope is the wire format for all server-pushed realtime events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Realtime event types pushed by the server.
const (
	EventPresenceChanged = "presence_changed"
	EventMessageReceived = "message_received"
)

// PresencePayload is the payload of EventPresenceChanged: the full set of
// currently online user IDs, not a delta.
type PresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// State represents the engine's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)
