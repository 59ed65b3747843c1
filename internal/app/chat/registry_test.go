package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn satisfies Conn without a real socket. ReadMessage blocks until the
// connection is closed; writes and control frames are recorded.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
	written  [][]byte
	control  []controlFrame
}

type controlFrame struct {
	messageType int
	data        []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closedCh: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closedCh
	return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.control = append(f.control, controlFrame{messageType, data})
	return nil
}

func (f *fakeConn) SetReadLimit(limit int64) {}

func (f *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) SetPongHandler(h func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// kickCode extracts the close code of the last recorded control frame.
func (f *fakeConn) kickCode(t *testing.T) int {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.control) == 0 {
		t.Fatal("no control frame recorded")
	}
	data := f.control[len(f.control)-1].data
	if len(data) < 2 {
		t.Fatalf("control frame too short: %v", data)
	}
	return int(data[0])<<8 | int(data[1])
}

// drainEvent pops one queued event off the client and decodes the envelope.
func drainEvent(t *testing.T, c *Client) Envelope {
	t.Helper()

	select {
	case data := <-c.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad event json: %v", err)
		}
		return env
	default:
		t.Fatal("expected a queued event")
		return Envelope{}
	}
}

func drainAll(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	alice := NewClient(registry, newFakeConn(), "alice")
	registry.Register(alice)

	t.Run("lookup returns the live handle", func(t *testing.T) {
		if got := registry.Lookup("alice"); got != alice {
			t.Fatalf("Lookup = %v, want the registered client", got)
		}
	})

	t.Run("lookup of offline user is nil", func(t *testing.T) {
		if got := registry.Lookup("bob"); got != nil {
			t.Fatalf("Lookup = %v, want nil", got)
		}
	})

	t.Run("unregister removes the mapping", func(t *testing.T) {
		registry.Unregister(alice)
		if got := registry.Lookup("alice"); got != nil {
			t.Fatalf("Lookup after unregister = %v, want nil", got)
		}
	})
}

func TestRegistryReplaceOnRegister(t *testing.T) {
	registry := NewRegistry()

	oldConn := newFakeConn()
	oldClient := NewClient(registry, oldConn, "alice")
	registry.Register(oldClient)

	newClient := NewClient(registry, newFakeConn(), "alice")
	registry.Register(newClient)

	t.Run("new handle wins the lookup", func(t *testing.T) {
		if got := registry.Lookup("alice"); got != newClient {
			t.Fatal("Lookup should return the newer connection")
		}
	})

	t.Run("old connection is kicked with the session code", func(t *testing.T) {
		if !oldConn.isClosed() {
			t.Fatal("old connection should be closed")
		}
		if code := oldConn.kickCode(t); code != WsCloseCodeSessionKicked {
			t.Fatalf("close code = %d, want %d", code, WsCloseCodeSessionKicked)
		}
	})

	t.Run("late unregister of the old handle is a no-op", func(t *testing.T) {
		registry.Unregister(oldClient)
		if got := registry.Lookup("alice"); got != newClient {
			t.Fatal("stale unregister clobbered the newer connection")
		}
	})

	t.Run("only one identity online", func(t *testing.T) {
		snapshot := registry.Snapshot()
		if len(snapshot) != 1 || snapshot[0] != "alice" {
			t.Fatalf("Snapshot = %v, want [alice]", snapshot)
		}
	})
}

func TestRegistrySnapshotSorted(t *testing.T) {
	registry := NewRegistry()

	for _, id := range []string{"carol", "alice", "bob"} {
		registry.Register(NewClient(registry, newFakeConn(), id))
	}

	snapshot := registry.Snapshot()
	want := []string{"alice", "bob", "carol"}
	if len(snapshot) != len(want) {
		t.Fatalf("Snapshot = %v, want %v", snapshot, want)
	}
	for i := range want {
		if snapshot[i] != want[i] {
			t.Fatalf("Snapshot = %v, want %v", snapshot, want)
		}
	}
}

func TestRegistryPresenceBroadcast(t *testing.T) {
	registry := NewRegistry()

	alice := NewClient(registry, newFakeConn(), "alice")
	registry.Register(alice)
	drainAll(alice)

	bob := NewClient(registry, newFakeConn(), "bob")
	registry.Register(bob)

	t.Run("existing client sees the new membership", func(t *testing.T) {
		env := drainEvent(t, alice)
		if env.Type != EventPresenceChanged {
			t.Fatalf("event type = %q, want %q", env.Type, EventPresenceChanged)
		}

		var p PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("bad presence payload: %v", err)
		}
		if len(p.UserIDs) != 2 || p.UserIDs[0] != "alice" || p.UserIDs[1] != "bob" {
			t.Fatalf("UserIDs = %v, want [alice bob]", p.UserIDs)
		}
	})

	t.Run("new client receives the snapshot too", func(t *testing.T) {
		env := drainEvent(t, bob)
		if env.Type != EventPresenceChanged {
			t.Fatalf("event type = %q, want %q", env.Type, EventPresenceChanged)
		}
	})

	t.Run("disconnect broadcasts the shrunken set", func(t *testing.T) {
		drainAll(alice)
		registry.Unregister(bob)

		env := drainEvent(t, alice)
		var p PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("bad presence payload: %v", err)
		}
		if len(p.UserIDs) != 1 || p.UserIDs[0] != "alice" {
			t.Fatalf("UserIDs = %v, want [alice]", p.UserIDs)
		}
	})
}

func TestRegistryStaleClientDoesNotBlockBroadcast(t *testing.T) {
	registry := NewRegistry()

	stale := NewClient(registry, newFakeConn(), "stale")
	registry.Register(stale)
	stale.shutdown()

	alice := NewClient(registry, newFakeConn(), "alice")
	registry.Register(alice)

	// The broadcast must have reached alice despite the closed peer.
	env := drainEvent(t, alice)
	if env.Type != EventPresenceChanged {
		t.Fatalf("event type = %q, want %q", env.Type, EventPresenceChanged)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}

	for _, id := range ids {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				c := NewClient(registry, newFakeConn(), userID)
				registry.Register(c)
				registry.Lookup(userID)
				registry.Unregister(c)
			}(id)
		}
	}

	wg.Wait()

	// Whatever interleaving happened, every identity is mapped to at most one
	// handle and snapshots stay well-formed.
	if n := len(registry.Snapshot()); n > len(ids) {
		t.Fatalf("snapshot has %d entries for %d identities", n, len(ids))
	}
}

func TestRegistryBroadcastOrderMatchesMembership(t *testing.T) {
	registry := NewRegistry()

	observer := NewClient(registry, newFakeConn(), "observer")
	registry.Register(observer)
	drainAll(observer)

	// Churn other identities from many goroutines. Each membership change
	// fans out a snapshot; the last one the observer receives must describe
	// the final membership, never an older set delivered out of order.
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				c := NewClient(registry, newFakeConn(), userID)
				registry.Register(c)
				registry.Unregister(c)
			}(id)
		}
	}
	wg.Wait()

	var last PresencePayload
	seen := false
	for {
		select {
		case data := <-observer.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("bad event json: %v", err)
			}
			if env.Type != EventPresenceChanged {
				continue
			}
			if err := json.Unmarshal(env.Payload, &last); err != nil {
				t.Fatalf("bad presence payload: %v", err)
			}
			seen = true
		default:
			if !seen {
				t.Fatal("observer received no presence events")
			}
			final := registry.Snapshot()
			if len(last.UserIDs) != len(final) {
				t.Fatalf("last broadcast = %v, want final membership %v", last.UserIDs, final)
			}
			for i := range final {
				if last.UserIDs[i] != final[i] {
					t.Fatalf("last broadcast = %v, want final membership %v", last.UserIDs, final)
				}
			}
			return
		}
	}
}
