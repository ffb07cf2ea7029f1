package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/protocol"
	"github.com/vango-dev/vango-live/pkg/session"
	"github.com/vango-dev/vango-live/pkg/store"
)

// publish pushes a committed snapshot to every live session interested in it.
func (b *Broker) publish(snap component.Snapshot) {
	msg := protocol.NewUpdate(snap.ID, snap.HTML, snap.State.Map())
	for _, s := range b.sessions.BroadcastCandidates(snap.ID) {
		b.deliver(s, msg)
	}
}

// deliver writes msg to s. Sessions without a transport are skipped and a
// failed write drops the session; neither is reported to the caller.
func (b *Broker) deliver(s *session.Session, msg *protocol.Message) bool {
	t := s.Transport()
	if t == nil {
		return false
	}
	if err := t.Send(msg); err != nil {
		b.drop(s.ID, t, err)
		return false
	}
	b.observer.MessageSent(msg.Type)
	return true
}

// drop removes the session bound to t and closes t.
func (b *Broker) drop(sessionID string, t session.Transport, cause error) {
	if sessionID != "" && b.sessions.RemoveIfTransport(sessionID, t) {
		b.observer.SessionDropped()
		b.observer.SessionsChanged(b.sessions.Len())
	}
	t.Close()
	b.logger.Debug("session dropped", "session_id", sessionID, "error", cause)
}

// Disconnect unbinds a closed connection. The session is removed only while
// it is still bound to t, so a stale connection cannot evict a newer
// registration of the same id.
func (b *Broker) Disconnect(sessionID string, t session.Transport) {
	if sessionID == "" {
		return
	}
	if b.sessions.RemoveIfTransport(sessionID, t) {
		b.observer.SessionsChanged(b.sessions.Len())
		b.logger.Debug("session disconnected", "session_id", sessionID)
	}
}

// PushBatch commits every dirty component among ids (all components when ids
// is empty) and sends each session a single batch_update covering the ones it
// watches. A session interested in only one of them gets a plain update.
// It returns the number of components committed, including those sent
// before a render failure stopped the batch.
//
// The execution locks of all targets are held, in id order, until every
// session has been sent its batch, so no action on a target can publish a
// newer render ahead of the batch.
func (b *Broker) PushBatch(ctx context.Context, ids ...string) (int, error) {
	var targets []*component.Component
	if len(ids) == 0 {
		targets = b.components.All()
	} else {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			c, ok := b.components.Get(id)
			if !ok {
				return 0, fmt.Errorf("%w: %s", ErrComponentNotFound, id)
			}
			if !seen[id] {
				seen[id] = true
				targets = append(targets, c)
			}
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })
	}

	var updates []protocol.Update
	var committed []*component.Component
	var recs []*store.Record
	err := exclusiveAll(targets, func() error {
		for _, c := range targets {
			if !c.Dirty() {
				continue
			}
			snap, err := c.Commit()
			if err != nil {
				b.sendBatch(updates)
				return err
			}
			updates = append(updates, protocol.Update{
				ComponentID: snap.ID,
				HTML:        snap.HTML,
				State:       snap.State.Map(),
			})
			committed = append(committed, c)
			recs = append(recs, b.record(c))
		}
		b.sendBatch(updates)
		return nil
	})
	for i, c := range committed {
		b.persist(ctx, c, recs[i])
	}
	return len(updates), err
}

// sendBatch gives every session one message holding the updates it watches.
func (b *Broker) sendBatch(updates []protocol.Update) {
	if len(updates) == 0 {
		return
	}
	for _, s := range b.sessions.All() {
		var mine []protocol.Update
		for _, u := range updates {
			if s.Interested(u.ComponentID) {
				mine = append(mine, u)
			}
		}
		switch len(mine) {
		case 0:
		case 1:
			b.deliver(s, protocol.NewUpdate(mine[0].ComponentID, mine[0].HTML, mine[0].State))
		default:
			b.deliver(s, protocol.NewBatchUpdate(mine))
		}
	}
}

// exclusiveAll runs fn while holding the execution lock of every component
// in cs, acquired in slice order.
func exclusiveAll(cs []*component.Component, fn func() error) error {
	if len(cs) == 0 {
		return fn()
	}
	return cs[0].Exclusive(func() error {
		return exclusiveAll(cs[1:], fn)
	})
}

// Reload tells one session to reload the page.
func (b *Broker) Reload(sessionID string) error {
	s, ok := b.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if !b.deliver(s, protocol.NewReload()) {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, sessionID)
	}
	return nil
}

// ReloadAll tells every session to reload and returns how many were reached.
func (b *Broker) ReloadAll() int {
	n := 0
	msg := protocol.NewReload()
	for _, s := range b.sessions.All() {
		if b.deliver(s, msg) {
			n++
		}
	}
	return n
}

// Eval sends the allowlisted script name to one session.
func (b *Broker) Eval(sessionID, name string) error {
	code, ok := b.config.EvalScripts[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEvalNotAllowed, name)
	}
	s, ok := b.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if !b.deliver(s, protocol.NewEval(code)) {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, sessionID)
	}
	return nil
}

// EvalAll sends the allowlisted script name to every session.
func (b *Broker) EvalAll(name string) (int, error) {
	code, ok := b.config.EvalScripts[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrEvalNotAllowed, name)
	}
	n := 0
	msg := protocol.NewEval(code)
	for _, s := range b.sessions.All() {
		if b.deliver(s, msg) {
			n++
		}
	}
	return n, nil
}
