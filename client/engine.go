package client

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNoToken is returned by Connect when no identity token has been obtained.
// Identity always precedes the realtime connection.
var ErrNoToken = errors.New("client: token required before connect")

const (
	// DefaultMaxReconnectAttempts bounds the automatic reconnect loop.
	DefaultMaxReconnectAttempts = 5

	// DefaultReconnectDelay is the fixed pause between reconnect attempts.
	DefaultReconnectDelay = 1 * time.Second

	ackTimeout = 5 * time.Second
)

// EngineConfig configures the realtime engine. Zero values take the defaults.
type EngineConfig struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Dialer               *websocket.Dialer
	Logger               zerolog.Logger
}

func (c *EngineConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Engine maintains the live connection and the client-side conversation
// state: the online set, the selected peer, per-peer unseen counters and the
// open conversation's message list.
//
// All local state is mutated either by the single read/dispatch goroutine or
// under the engine mutex by API-calling methods, so callers may use the
// accessors from any goroutine.
type Engine struct {
	api    *API
	config EngineConfig
	logger zerolog.Logger

	mu               sync.Mutex
	state            State
	conn             *websocket.Conn
	intentionalClose bool

	online       map[string]struct{}
	selectedPeer string
	unseen       map[string]int
	messages     []Message

	onPresence []func(online []string)
	onMessage  []func(msg Message)
	onState    []func(state State)
}

// NewEngine creates an Engine on top of an API client. The engine reads the
// token from the API client at dial time, so logging in after construction
// works.
func NewEngine(api *API, config EngineConfig) *Engine {
	config.defaults()

	return &Engine{
		api:    api,
		config: config,
		logger: config.Logger,
		state:  StateDisconnected,
		online: make(map[string]struct{}),
		unseen: make(map[string]int),
	}
}

// OnPresenceChanged registers a handler for online-set changes. Handlers must
// be registered before Connect; Close removes them.
func (e *Engine) OnPresenceChanged(h func(online []string)) {
	e.mu.Lock()
	e.onPresence = append(e.onPresence, h)
	e.mu.Unlock()
}

// OnMessageReceived registers a handler for live-delivered messages.
func (e *Engine) OnMessageReceived(h func(msg Message)) {
	e.mu.Lock()
	e.onMessage = append(e.onMessage, h)
	e.mu.Unlock()
}

// OnStateChange registers a handler for connection state transitions.
func (e *Engine) OnStateChange(h func(state State)) {
	e.mu.Lock()
	e.onState = append(e.onState, h)
	e.mu.Unlock()
}

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SelectedPeer returns the currently selected conversation peer, or "".
func (e *Engine) SelectedPeer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedPeer
}

// OnlineUsers returns a sorted snapshot of the online user IDs.
func (e *Engine) OnlineUsers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.online))
	for id := range e.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnseenCount returns the number of unseen messages from the given peer.
func (e *Engine) UnseenCount(peerID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unseen[peerID]
}

// Messages returns a copy of the open conversation's message list.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message(nil), e.messages...)
}

// Connect establishes the realtime connection. It requires a token on the
// underlying API client and is a no-op when already connected or connecting.
func (e *Engine) Connect(ctx context.Context) error {
	if e.api.Token == "" {
		return ErrNoToken
	}

	e.mu.Lock()
	if e.state == StateConnected || e.state == StateConnecting {
		e.mu.Unlock()
		return nil
	}
	e.state = StateConnecting
	e.intentionalClose = false
	e.mu.Unlock()
	e.emitState(StateConnecting)

	conn, err := e.dial(ctx)
	if err != nil {
		e.setState(StateDisconnected)
		return err
	}

	e.mu.Lock()
	if e.intentionalClose {
		e.mu.Unlock()
		conn.Close()
		return nil
	}
	e.conn = conn
	e.state = StateConnected
	e.mu.Unlock()
	e.emitState(StateConnected)

	go e.readLoop(conn)

	return nil
}

// Close is the explicit logout path: it removes every registered handler,
// closes the socket and suppresses any reconnect attempt.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.intentionalClose = true
	conn := e.conn
	e.conn = nil
	e.state = StateDisconnected
	stateHooks := e.onState
	e.onPresence = nil
	e.onMessage = nil
	e.onState = nil
	e.mu.Unlock()

	for _, h := range stateHooks {
		h(StateDisconnected)
	}

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client logout"),
			deadline,
		)
		return conn.Close()
	}

	return nil
}

// RefreshUsers fetches the sidebar payload and seeds the engine's unseen
// counters and online set from it.
func (e *Engine) RefreshUsers(ctx context.Context) (*UsersResult, error) {
	result, err := e.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.unseen = make(map[string]int, len(result.UnseenMessages))
	for id, n := range result.UnseenMessages {
		e.unseen[id] = n
	}
	e.online = make(map[string]struct{}, len(result.OnlineUserIDs))
	for _, id := range result.OnlineUserIDs {
		e.online[id] = struct{}{}
	}
	e.mu.Unlock()

	return result, nil
}

// SelectPeer opens the conversation with the given peer: the unseen counter
// resets, the history is fetched (the server bulk-marks it seen) and the
// local message list is replaced.
func (e *Engine) SelectPeer(ctx context.Context, peerID string) error {
	e.mu.Lock()
	e.selectedPeer = peerID
	e.unseen[peerID] = 0
	e.mu.Unlock()

	history, err := e.api.GetConversation(ctx, peerID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	// The user may have switched again while the fetch was in flight.
	if e.selectedPeer == peerID {
		e.messages = history
	}
	e.mu.Unlock()

	return nil
}

// SendMessage persists a message through the API and appends it to the local
// list when the receiver is the open conversation.
func (e *Engine) SendMessage(ctx context.Context, receiverID, text, imageURL string) (*Message, error) {
	msg, err := e.api.SendMessage(ctx, receiverID, text, imageURL)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.selectedPeer == receiverID {
		e.messages = append(e.messages, *msg)
	}
	e.mu.Unlock()

	return msg, nil
}

// dial opens the WebSocket, carrying the token in the Sec-WebSocket-Protocol
// offer next to the bearer sentinel.
func (e *Engine) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(e.api.BaseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws"

	dialer := *e.config.Dialer
	dialer.Subprotocols = []string{"bearer", e.api.Token}

	conn, res, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if res != nil {
			res.Body.Close()
		}
		return nil, err
	}

	return conn, nil
}

// readLoop is the engine's single dispatch goroutine. On a connection drop it
// runs the bounded reconnect loop and resumes reading on the new socket.
func (e *Engine) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			intentional := e.intentionalClose
			e.conn = nil
			e.mu.Unlock()

			if intentional {
				return
			}

			e.logger.Warn().Err(err).Msg("realtime connection lost")

			next := e.reconnect()
			if next == nil {
				return
			}
			conn = next
			continue
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		e.dispatch(env)
	}
}

// reconnect makes up to MaxReconnectAttempts dial attempts with a fixed delay
// between them, returning the new connection or nil when the budget is spent.
func (e *Engine) reconnect() *websocket.Conn {
	e.setState(StateReconnecting)

	for attempt := 1; attempt <= e.config.MaxReconnectAttempts; attempt++ {
		time.Sleep(e.config.ReconnectDelay)

		e.mu.Lock()
		intentional := e.intentionalClose
		e.mu.Unlock()
		if intentional {
			break
		}

		conn, err := e.dial(context.Background())
		if err != nil {
			e.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}

		e.mu.Lock()
		// A Close may have landed while the dial was in flight; the logout
		// wins and the fresh connection is discarded.
		if e.intentionalClose {
			e.mu.Unlock()
			conn.Close()
			return nil
		}
		e.conn = conn
		e.state = StateConnected
		e.mu.Unlock()
		e.emitState(StateConnected)

		return conn
	}

	e.setState(StateDisconnected)
	return nil
}

// dispatch applies a server event to the local state and invokes the
// registered handlers.
func (e *Engine) dispatch(env Envelope) {
	switch env.Type {
	case EventPresenceChanged:
		var p PresencePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}

		e.mu.Lock()
		e.online = make(map[string]struct{}, len(p.UserIDs))
		for _, id := range p.UserIDs {
			e.online[id] = struct{}{}
		}
		hooks := e.onPresence
		e.mu.Unlock()

		for _, h := range hooks {
			h(p.UserIDs)
		}

	case EventMessageReceived:
		var msg Message
		if json.Unmarshal(env.Payload, &msg) != nil {
			return
		}

		// The selected peer is read now, at dispatch time, not captured when
		// the handler was registered: switching conversations mid-flight must
		// change how this message is reconciled.
		e.mu.Lock()
		selected := e.selectedPeer == msg.SenderID
		if selected {
			msg.Seen = true
			e.messages = append(e.messages, msg)
		} else {
			e.unseen[msg.SenderID]++
		}
		hooks := e.onMessage
		e.mu.Unlock()

		if selected {
			go e.ackSeen(msg.ID)
		}

		for _, h := range hooks {
			h(msg)
		}
	}
}

// ackSeen is the fire-and-forget seen acknowledgement for a live-delivered
// message in the open conversation. Failures are logged and dropped; the
// durable seen-state catches up on the next conversation open.
func (e *Engine) ackSeen(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	if err := e.api.MarkSeen(ctx, messageID); err != nil {
		e.logger.Warn().Err(err).Str("message_id", messageID).Msg("seen ack failed")
	}
}

// setState transitions the connection state and notifies handlers when it
// actually changed.
func (e *Engine) setState(s State) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	e.state = s
	e.mu.Unlock()

	e.emitState(s)
}

// emitState invokes the state handlers with the given state.
func (e *Engine) emitState(s State) {
	e.mu.Lock()
	hooks := e.onState
	e.mu.Unlock()

	for _, h := range hooks {
		h(s)
	}
}
