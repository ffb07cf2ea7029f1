package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrNoTransport is returned when sending to a session without a transport.
var ErrNoTransport = errors.New("session: no transport")

// Registry maps session ids to sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Upsert registers id with transport t and the given interest set.
// An existing record is updated in place (same *Session) and replaced is
// true; its previous interest set is discarded.
func (r *Registry) Upsert(id string, t Transport, interest []string) (s *Session, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		existing.reset(t, interest)
		return existing, true
	}
	s = newSession(id, t, interest)
	r.sessions[id] = s
	return s, false
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the session with id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// RemoveIfTransport deletes the session with id only while it is still bound
// to t. A connection that closes after its id was re-registered on another
// connection therefore does not remove the newer registration.
func (r *Registry) RemoveIfTransport(id string, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Transport() != t {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of all sessions sorted by id.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BroadcastCandidates returns the sessions interested in componentID.
// The registry lock is held only while copying; interest is checked on the
// copy, so the registry may change freely while callers iterate.
func (r *Registry) BroadcastCandidates(componentID string) []*Session {
	all := r.All()
	out := all[:0]
	for _, s := range all {
		if s.Interested(componentID) {
			out = append(out, s)
		}
	}
	return out
}
