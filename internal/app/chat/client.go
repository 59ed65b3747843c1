/*
Package chat contains the realtime delivery and presence subsystem.

This file defines the Client struct wrapping one live WebSocket connection
bound to one authenticated user for its whole lifetime. It owns the message
loops (ReadPump and WritePump) and the send queue the registry, broadcaster
and router push into.
*/
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quickchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 4096

	// size of the per-client outbound queue.
	sendQueueSize = 256

	// WsCloseCodeSessionKicked is a custom WebSocket close code (4000-4999
	// range) signaling that the session was replaced by a newer connection
	// for the same identity.
	WsCloseCodeSessionKicked = 4001
)

// ErrSendQueueFull is returned when a push is dropped because the client's
// outbound queue is saturated.
var ErrSendQueueFull = errors.New("client send queue full")

// errClientClosed is returned when enqueueing to an already-closed client.
var errClientClosed = errors.New("client closed")

// Conn is the subset of *websocket.Conn the client needs. Tests substitute a
// fake so the registry and router can run without real sockets.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents one live connection and the user it belongs to.
type Client struct {
	// registry that owns this client's lifecycle.
	registry *Registry

	// underlying WebSocket connection.
	conn Conn

	// userID is the authenticated identity; immutable for the connection lifetime.
	userID string

	// send queues outbound event bytes for the WritePump.
	send chan []byte

	// closed signals that the client no longer accepts pushes.
	closed chan struct{}

	// once guards the close transition.
	once sync.Once

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs a Client bound to the given identity.
func NewClient(registry *Registry, conn Conn, userID string) *Client {
	clientLogger := logx.Logger().With().
		Str("user_id", userID).
		Logger()

	return &Client{
		registry: registry,
		conn:     conn,
		userID:   userID,
		send:     make(chan []byte, sendQueueSize),
		closed:   make(chan struct{}),
		logger:   clientLogger,
	}
}

// UserID returns the identity this connection is bound to.
func (c *Client) UserID() string {
	return c.userID
}

// Enqueue offers event bytes to the client without blocking. A saturated
// queue drops the event; the message is already durable, so delivery stays
// best-effort.
func (c *Client) Enqueue(data []byte) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping event")
		return ErrSendQueueFull
	}
}

// ReadPump reads frames from the connection until it fails, handling pong
// heartbeats. Inbound frames carry no application traffic (all client
// operations go over the HTTP API) and are discarded. On exit the client is
// unregistered and the connection closed.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended")
			}
			return
		}
	}
}

// cleanupOnDisconnect unregisters the client and closes the socket when the
// ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.registry.Unregister(c)

	c.shutdown()
}

// WritePump drains the send queue onto the socket and keeps the heartbeat
// going. It owns all data writes to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.closed:
			c.writeClose()
			return

		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one queued event to the socket. Returns false if
// the WritePump loop should terminate.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a heartbeat ping. Returns false on write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// writeClose sends a normal close frame before the socket shuts down.
func (c *Client) writeClose() {
	deadline := time.Now().Add(writeWait)
	if err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write close frame")
	}
}

// Kick closes the connection with the session-replaced close code. Called by
// the registry after a newer connection for the same identity takes over.
func (c *Client) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionKicked).
		Str("reason", reason).
		Msg("Kicking replaced session.")

	deadline := time.Now().Add(writeWait)
	closeMessage := websocket.FormatCloseMessage(WsCloseCodeSessionKicked, reason)

	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, deadline); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send kick close frame")
	}

	c.shutdown()
}

// shutdown marks the client closed and closes the socket, exactly once.
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.closed)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error")
		}
	})
}
