package session

import (
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

// Transport is a persistent, ordered, duplex channel to one client.
// Send must be safe for concurrent use.
type Transport interface {
	Send(msg *protocol.Message) error
	Close() error
}

// Session is one client's subscription context.
type Session struct {
	// ID is the client-supplied session id.
	ID string

	// CreatedAt is when the id was first registered.
	CreatedAt time.Time

	mu         sync.RWMutex
	transport  Transport
	interest   map[string]struct{}
	lastActive time.Time
}

func newSession(id string, t Transport, interest []string) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
		transport:  t,
		interest:   make(map[string]struct{}, len(interest)),
	}
	for _, cid := range interest {
		s.interest[cid] = struct{}{}
	}
	return s
}

// Transport returns the session's transport, or nil.
func (s *Session) Transport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// Live reports whether the session has a transport to push to.
func (s *Session) Live() bool {
	return s.Transport() != nil
}

// Send writes msg to the session's transport.
func (s *Session) Send(msg *protocol.Message) error {
	t := s.Transport()
	if t == nil {
		return ErrNoTransport
	}
	return t.Send(msg)
}

// Interested reports whether the session wants pushes for componentID.
func (s *Session) Interested(componentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.interest[componentID]
	return ok
}

// Interest returns the sorted component ids the session watches.
func (s *Session) Interest() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.interest))
	for id := range s.interest {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Subscribe adds component ids to the interest set.
func (s *Session) Subscribe(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.interest[id] = struct{}{}
	}
}

// Unsubscribe removes component ids from the interest set.
func (s *Session) Unsubscribe(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.interest, id)
	}
}

// LastActive returns when the session last registered or was touched.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// reset replaces transport and interest in place.
func (s *Session) reset(t Transport, interest []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
	s.interest = make(map[string]struct{}, len(interest))
	for _, cid := range interest {
		s.interest[cid] = struct{}{}
	}
	s.lastActive = time.Now()
}
