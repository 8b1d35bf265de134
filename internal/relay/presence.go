package relay

import (
	"github.com/talktalk/server/internal/store"
)

// Presence pushes the full identity roster to every live connection
// whenever identity or connection state changes. No diffing: each broadcast
// overwrites the receiver's view, last broadcast wins.
type Presence struct {
	identities *store.IdentityStore
	registry   *Registry
	metrics    *Metrics
}

// NewPresence creates a presence broadcaster
func NewPresence(identities *store.IdentityStore, registry *Registry, metrics *Metrics) *Presence {
	return &Presence{
		identities: identities,
		registry:   registry,
		metrics:    metrics,
	}
}

// BroadcastRoster sends a users_list frame with the full roster to every
// live peer. Send failures are per-peer and ignored here; a failing peer is
// reclaimed by its own gateway.
func (p *Presence) BroadcastRoster() {
	frame := Frame{
		Type:  TypeUsersList,
		Users: p.identities.Roster(),
	}
	for _, peer := range p.registry.Peers() {
		_ = peer.Send(frame)
	}
	p.metrics.RosterBroadcasts.Inc()
}
