/*
Package chat contains the realtime delivery and presence subsystem.

This file implements the presence broadcast: on every registry membership
change the fresh snapshot of online user IDs is fanned out to every live
connection. Broadcasting the same set twice is harmless, and a burst of
changes may skip intermediate states (last write wins).
*/
package chat

// broadcastPresence fans the snapshot out to all given clients. Each enqueue
// is non-blocking, so one stale or saturated connection never holds back the
// others.
func (r *Registry) broadcastPresence(targets []*Client, snapshot []string) {
	event, err := NewEvent(EventPresenceChanged, PresencePayload{UserIDs: snapshot})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal presence event.")
		return
	}

	for _, c := range targets {
		if err := c.Enqueue(event); err != nil {
			r.logger.Debug().
				Err(err).
				Str("user_id", c.userID).
				Msg("Presence push skipped.")
		}
	}
}
