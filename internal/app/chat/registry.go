/*
Package chat contains the realtime delivery and presence subsystem.

This file defines the Registry, the single source of truth for which users
currently hold a live connection. It enforces the one-handle-per-identity
replace policy and notifies the presence broadcaster on every membership
change.
*/
package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"quickchat/internal/pkg/logx"
)

// Registry maps authenticated user IDs to their live connection. All methods
// are safe for concurrent use from independent connection lifecycles; a
// lookup never observes a handle that has already been unregistered.
type Registry struct {
	// mu serializes every mutation and lookup of clients.
	mu sync.RWMutex

	// broadcastMu serializes presence fan-outs in mutation order. It is
	// acquired while mu is still held, so two concurrent membership changes
	// can never deliver their snapshots inverted; lock order is always
	// mu before broadcastMu.
	broadcastMu sync.Mutex

	// clients maps user ID to the single live connection for that identity.
	clients map[string]*Client

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry. It is passed by reference to the
// router, broadcaster and handlers; there is no package-level instance.
func NewRegistry() *Registry {
	registryLogger := logx.Logger().With().Str("component", "Registry").Logger()

	return &Registry{
		clients: make(map[string]*Client),
		logger:  registryLogger,
	}
}

// Register associates the client with its identity. If a prior connection
// exists for the same identity it is replaced: the new handle becomes
// visible first, then the old one is kicked, so a concurrent Route targets
// the new connection, never the stale one. Triggers a presence broadcast.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()

	previous := r.clients[client.userID]
	r.clients[client.userID] = client

	online := len(r.clients)
	targets, snapshot := r.membershipLocked()

	r.broadcastMu.Lock()
	r.mu.Unlock()

	if previous != nil {
		previous.Kick("Session replaced by a newer connection.")
	}

	r.logger.Info().
		Str("user_id", client.userID).
		Int("online", online).
		Msg("Client registered.")

	r.broadcastPresence(targets, snapshot)
	r.broadcastMu.Unlock()
}

// Unregister removes the client's mapping, but only if the stored handle is
// this exact client. A late disconnect from a replaced connection therefore
// never clobbers the newer one. Triggers a presence broadcast only when the
// membership actually changed.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()

	current, ok := r.clients[client.userID]
	if !ok || current != client {
		r.mu.Unlock()

		if ok {
			r.logger.Info().
				Str("stale_user_id", client.userID).
				Msg("Ignoring unregister for stale connection.")
		}
		return
	}

	delete(r.clients, client.userID)

	online := len(r.clients)
	targets, snapshot := r.membershipLocked()

	r.broadcastMu.Lock()
	r.mu.Unlock()

	r.logger.Info().
		Str("user_id", client.userID).
		Int("online", online).
		Msg("Client unregistered.")

	r.broadcastPresence(targets, snapshot)
	r.broadcastMu.Unlock()
}

// Lookup returns the live connection for the identity, or nil when offline.
// Non-blocking.
func (r *Registry) Lookup(userID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.clients[userID]
}

// Snapshot returns the sorted set of identities currently online.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, snapshot := r.membershipLocked()
	return snapshot
}

// membershipLocked captures the current clients and the sorted identity set.
// Callers must hold mu.
func (r *Registry) membershipLocked() ([]*Client, []string) {
	targets := make([]*Client, 0, len(r.clients))
	snapshot := make([]string, 0, len(r.clients))

	for id, c := range r.clients {
		targets = append(targets, c)
		snapshot = append(snapshot, id)
	}
	sort.Strings(snapshot)

	return targets, snapshot
}

// Shutdown kicks every live connection and clears the registry. Used during
// graceful server shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}

	r.logger.Info().Int("closed", len(clients)).Msg("Registry shutdown complete.")
}
