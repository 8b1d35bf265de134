package relay

import "sync"

// Peer is a live connection handle capable of receiving frames. Send must
// not block on a slow transport; implementations queue with a bounded
// buffer.
type Peer interface {
	Send(f Frame) error
}

// Registry maps an identity to at most one live peer. It is the liveness
// ground truth; it never closes peers and has no side effects beyond the
// map. Callers trigger presence broadcasts after Bind/Unbind.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]Peer),
	}
}

// Bind associates the identity with the peer, superseding any existing
// association. The superseded peer is not closed.
func (r *Registry) Bind(identityID string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[identityID] = p
}

// Unbind clears the association only if the current peer is exactly p, so a
// delayed close of a superseded connection cannot erase a newer one.
// Reports whether the association was cleared.
func (r *Registry) Unbind(identityID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[identityID]; ok && current == p {
		delete(r.peers, identityID)
		return true
	}
	return false
}

// Lookup returns the live peer for the identity, if bound.
func (r *Registry) Lookup(identityID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[identityID]
	return p, ok
}

// LiveIdentities returns the set of identities currently bound.
func (r *Registry) LiveIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// Peers returns a snapshot of all live peers.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
