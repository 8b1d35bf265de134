package store

import (
	"sort"
	"sync"

	"github.com/talktalk/server/internal/model"
)

// IdentityStore holds every registered identity for the lifetime of the
// process. Identities are created on first successful verification and
// never deleted.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*identityRecord
}

type identityRecord struct {
	id          string
	displayName string
	avatarRef   string
	verified    bool
	contacts    map[string]struct{}
}

// NewIdentityStore creates an empty IdentityStore
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[string]*identityRecord),
	}
}

// Verify creates the identity if absent, or re-verifies the existing one in
// place. An empty name defaults to the id; an empty avatar keeps the current
// one. Returns the resulting identity snapshot.
func (s *IdentityStore) Verify(id, name, avatar string) model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[id]
	if !ok {
		rec = &identityRecord{
			id:          id,
			displayName: id,
			contacts:    make(map[string]struct{}),
		}
		s.identities[id] = rec
	}
	rec.verified = true
	if name != "" {
		rec.displayName = name
	}
	if avatar != "" {
		rec.avatarRef = avatar
	}
	return rec.snapshot()
}

// Get returns a snapshot of the identity, if registered.
func (s *IdentityStore) Get(id string) (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[id]
	if !ok {
		return model.Identity{}, false
	}
	return rec.snapshot(), true
}

// UpdateProfile mutates displayName and/or avatarRef. Empty fields are left
// unchanged. Reports whether the identity exists.
func (s *IdentityStore) UpdateProfile(id, name, avatar string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.identities[id]
	if !ok {
		return false
	}
	if name != "" {
		rec.displayName = name
	}
	if avatar != "" {
		rec.avatarRef = avatar
	}
	return true
}

// AddContact adds `to` to `from`'s contact set. Both identities must exist.
// Contacts are a client-side convenience only; they do not gate the relay.
func (s *IdentityStore) AddContact(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromRec, ok := s.identities[from]
	if !ok {
		return false
	}
	if _, ok := s.identities[to]; !ok {
		return false
	}
	fromRec.contacts[to] = struct{}{}
	return true
}

// Roster returns a snapshot of all identities, ordered by id.
func (s *IdentityStore) Roster() []model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roster := make([]model.Identity, 0, len(s.identities))
	for _, rec := range s.identities {
		roster = append(roster, rec.snapshot())
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster
}

// snapshot copies the record into the wire model. Caller must hold the lock.
func (r *identityRecord) snapshot() model.Identity {
	contacts := make([]string, 0, len(r.contacts))
	for id := range r.contacts {
		contacts = append(contacts, id)
	}
	sort.Strings(contacts)
	return model.Identity{
		ID:          r.id,
		DisplayName: r.displayName,
		AvatarRef:   r.avatarRef,
		Verified:    r.verified,
		ContactIDs:  contacts,
	}
}
