package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer is an httptest server speaking the REST envelope plus an
// optional WebSocket endpoint.
type fakeServer struct {
	*httptest.Server

	mu      sync.Mutex
	history map[string][]Message
	acked   []string
	ackedCh chan string

	refuseWS       atomic.Bool
	holdWS         atomic.Bool
	upgradeArrived chan struct{}
	releaseUpgrade chan struct{}
	wsConns        chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{
		history:        make(map[string][]Message),
		ackedCh:        make(chan string, 16),
		upgradeArrived: make(chan struct{}, 4),
		releaseUpgrade: make(chan struct{}),
		wsConns:        make(chan *websocket.Conn, 4),
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if fs.refuseWS.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if fs.holdWS.Load() {
			fs.upgradeArrived <- struct{}{}
			<-fs.releaseUpgrade
		}
		conn, err := upgrader.Upgrade(w, r, http.Header{
			"Sec-Websocket-Protocol": {"bearer"},
		})
		if err != nil {
			return
		}
		fs.wsConns <- conn
	})
	mux.HandleFunc("/api/messages/mark/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/messages/mark/")
		fs.mu.Lock()
		fs.acked = append(fs.acked, id)
		fs.mu.Unlock()
		fs.ackedCh <- id
		writeEnvelope(w, nil)
	})
	mux.HandleFunc("/api/messages/users", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{
			"users":          []User{},
			"unseenMessages": map[string]int{},
			"onlineUserIds":  []string{},
		})
	})
	mux.HandleFunc("/api/messages/", func(w http.ResponseWriter, r *http.Request) {
		peerID := strings.TrimPrefix(r.URL.Path, "/api/messages/")
		fs.mu.Lock()
		history := fs.history[peerID]
		fs.mu.Unlock()
		writeEnvelope(w, map[string]any{"messages": history})
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Server.Close)

	return fs
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func newTestEngine(t *testing.T, fs *fakeServer, config EngineConfig) *Engine {
	t.Helper()

	api := NewAPI(fs.URL)
	api.Token = "test-token"
	return NewEngine(api, config)
}

func mustEnvelope(t *testing.T, eventType string, payload any) Envelope {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return Envelope{Type: eventType, Payload: raw}
}

func TestEngineReconciliation(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{})

	ctx := context.Background()
	if err := engine.SelectPeer(ctx, "peerA"); err != nil {
		t.Fatal(err)
	}

	t.Run("message from the selected peer lands in the open conversation", func(t *testing.T) {
		engine.dispatch(mustEnvelope(t, EventMessageReceived, Message{
			ID: "m1", SenderID: "peerA", ReceiverID: "me", Text: "hi",
		}))

		msgs := engine.Messages()
		if len(msgs) != 1 || msgs[0].ID != "m1" {
			t.Fatalf("Messages = %v, want [m1]", msgs)
		}
		if !msgs[0].Seen {
			t.Fatal("message in the open conversation should be locally seen")
		}
		if n := engine.UnseenCount("peerA"); n != 0 {
			t.Fatalf("UnseenCount(peerA) = %d, want 0", n)
		}

		select {
		case id := <-fs.ackedCh:
			if id != "m1" {
				t.Fatalf("acked %q, want m1", id)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("seen ack never reached the server")
		}
	})

	t.Run("message from another peer only bumps its counter", func(t *testing.T) {
		engine.dispatch(mustEnvelope(t, EventMessageReceived, Message{
			ID: "m2", SenderID: "peerB", ReceiverID: "me", Text: "psst",
		}))

		if n := engine.UnseenCount("peerB"); n != 1 {
			t.Fatalf("UnseenCount(peerB) = %d, want 1", n)
		}
		if msgs := engine.Messages(); len(msgs) != 1 {
			t.Fatalf("conversation grew to %d messages, want 1", len(msgs))
		}

		select {
		case id := <-fs.ackedCh:
			t.Fatalf("unexpected seen ack for %q", id)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("the selected peer is read at dispatch time", func(t *testing.T) {
		// Switch conversations after registration: a message from peerA must
		// now count as unseen instead of landing in the open conversation.
		if err := engine.SelectPeer(ctx, "peerB"); err != nil {
			t.Fatal(err)
		}

		engine.dispatch(mustEnvelope(t, EventMessageReceived, Message{
			ID: "m3", SenderID: "peerA", ReceiverID: "me", Text: "late",
		}))

		if n := engine.UnseenCount("peerA"); n != 1 {
			t.Fatalf("UnseenCount(peerA) = %d, want 1", n)
		}
	})
}

func TestEngineSelectPeerResetsCounter(t *testing.T) {
	fs := newFakeServer(t)
	fs.history["peerB"] = []Message{
		{ID: "h1", SenderID: "peerB", ReceiverID: "me", Text: "old", Seen: true},
		{ID: "h2", SenderID: "me", ReceiverID: "peerB", Text: "older", Seen: true},
	}

	engine := newTestEngine(t, fs, EngineConfig{})

	for i := 0; i < 3; i++ {
		engine.dispatch(mustEnvelope(t, EventMessageReceived, Message{
			ID: "u", SenderID: "peerB", ReceiverID: "me", Text: "unread",
		}))
	}
	if n := engine.UnseenCount("peerB"); n != 3 {
		t.Fatalf("UnseenCount(peerB) = %d, want 3", n)
	}

	if err := engine.SelectPeer(context.Background(), "peerB"); err != nil {
		t.Fatal(err)
	}

	if n := engine.UnseenCount("peerB"); n != 0 {
		t.Fatalf("UnseenCount(peerB) after select = %d, want 0", n)
	}

	msgs := engine.Messages()
	if len(msgs) != 2 || msgs[0].ID != "h1" {
		t.Fatalf("Messages = %v, want the fetched history", msgs)
	}
}

func TestEngineCloseDeregistersHandlers(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{})

	var calls atomic.Int32
	engine.OnMessageReceived(func(Message) { calls.Add(1) })
	engine.OnPresenceChanged(func([]string) { calls.Add(1) })

	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	engine.dispatch(mustEnvelope(t, EventMessageReceived, Message{
		ID: "m1", SenderID: "peerA", ReceiverID: "me", Text: "ghost",
	}))
	engine.dispatch(mustEnvelope(t, EventPresenceChanged, PresencePayload{UserIDs: []string{"peerA"}}))

	if got := calls.Load(); got != 0 {
		t.Fatalf("handlers invoked %d times after Close, want 0", got)
	}
	if engine.State() != StateDisconnected {
		t.Fatalf("State = %q, want %q", engine.State(), StateDisconnected)
	}
}

func TestEngineConnectRequiresToken(t *testing.T) {
	fs := newFakeServer(t)
	api := NewAPI(fs.URL)
	engine := NewEngine(api, EngineConfig{})

	if err := engine.Connect(context.Background()); err != ErrNoToken {
		t.Fatalf("Connect = %v, want ErrNoToken", err)
	}
}

func TestEngineLiveEvents(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{})

	presence := make(chan []string, 1)
	received := make(chan Message, 1)
	engine.OnPresenceChanged(func(online []string) { presence <- online })
	engine.OnMessageReceived(func(msg Message) { received <- msg })

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-fs.wsConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}
	defer serverConn.Close()

	writeServerEvent(t, serverConn, EventPresenceChanged, PresencePayload{UserIDs: []string{"peerA"}})
	select {
	case online := <-presence:
		if len(online) != 1 || online[0] != "peerA" {
			t.Fatalf("presence = %v, want [peerA]", online)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence event never dispatched")
	}

	writeServerEvent(t, serverConn, EventMessageReceived, Message{
		ID: "m1", SenderID: "peerA", ReceiverID: "me", Text: "hi",
	})
	select {
	case msg := <-received:
		if msg.ID != "m1" {
			t.Fatalf("message = %+v, want m1", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message event never dispatched")
	}

	if n := engine.UnseenCount("peerA"); n != 1 {
		t.Fatalf("UnseenCount(peerA) = %d, want 1", n)
	}
}

func writeServerEvent(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatal(err)
	}
}

func TestEngineReconnectBoundedAttempts(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{
		MaxReconnectAttempts: 2,
		ReconnectDelay:       20 * time.Millisecond,
	})

	states := make(chan State, 16)
	engine.OnStateChange(func(s State) { states <- s })

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var serverConn *websocket.Conn
	select {
	case serverConn = <-fs.wsConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}

	// Drop the connection and refuse further upgrades so every reconnect
	// attempt fails.
	fs.refuseWS.Store(true)
	serverConn.Close()

	waitForState := func(want State) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case s := <-states:
				if s == want {
					return
				}
			case <-deadline:
				t.Fatalf("never reached state %q", want)
			}
		}
	}

	waitForState(StateReconnecting)
	waitForState(StateDisconnected)

	// The budget is spent; the engine must stay down, not keep dialing.
	select {
	case s := <-states:
		t.Fatalf("unexpected state transition after exhaustion: %q", s)
	case <-time.After(200 * time.Millisecond):
	}

	if engine.State() != StateDisconnected {
		t.Fatalf("State = %q, want %q", engine.State(), StateDisconnected)
	}
}

func TestEngineCloseDuringReconnectDial(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{
		MaxReconnectAttempts: 3,
		ReconnectDelay:       20 * time.Millisecond,
	})

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var first *websocket.Conn
	select {
	case first = <-fs.wsConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}

	// Stall the next handshake so the reconnect dial hangs mid-flight, then
	// drop the live connection to trigger the reconnect.
	fs.holdWS.Store(true)
	first.Close()

	select {
	case <-fs.upgradeArrived:
	case <-time.After(5 * time.Second):
		t.Fatal("engine never redialed")
	}

	// Explicit logout while the dial is still in the handshake. When the
	// handshake is released the fresh connection must be discarded, not
	// installed.
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	close(fs.releaseUpgrade)

	var second *websocket.Conn
	select {
	case second = <-fs.wsConns:
	case <-time.After(2 * time.Second):
		t.Fatal("held handshake never completed")
	}

	// The engine closes the late connection; the server-side read unblocks.
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("late connection was kept open after logout")
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s := engine.State(); s != StateDisconnected {
			t.Fatalf("after explicit Close, engine state = %q, want %q", s, StateDisconnected)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngineReconnectResumesOnSuccess(t *testing.T) {
	fs := newFakeServer(t)
	engine := newTestEngine(t, fs, EngineConfig{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       20 * time.Millisecond,
	})

	states := make(chan State, 16)
	engine.OnStateChange(func(s State) { states <- s })

	if err := engine.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	first := <-fs.wsConns
	first.Close()

	// The server keeps accepting, so the first retry should restore the
	// connection.
	select {
	case second := <-fs.wsConns:
		defer second.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("engine never redialed")
	}

	waitForState := func(want State) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case s := <-states:
				if s == want {
					return
				}
			case <-deadline:
				t.Fatalf("never reached state %q", want)
			}
		}
	}

	waitForState(StateReconnecting)
	waitForState(StateConnected)
}
