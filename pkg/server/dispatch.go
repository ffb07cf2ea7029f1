package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/protocol"
	"github.com/vango-dev/vango-live/pkg/session"
	"github.com/vango-dev/vango-live/pkg/store"
)

// Peer is one client connection as the dispatcher sees it.
type Peer interface {
	session.Transport

	// SessionID returns the id the connection registered under, or "".
	SessionID() string

	// Bind records the id the connection registered under.
	Bind(sessionID string)
}

// HandleMessage decodes one inbound frame from p and performs exactly one of
// register, ping, action or update_state. Failures are answered with an
// error message on p and returned; none of them should close the connection.
func (b *Broker) HandleMessage(ctx context.Context, p Peer, raw []byte) error {
	msg, err := protocol.DecodeClientMessage(raw)
	if err != nil {
		err = &ProtocolError{SessionID: p.SessionID(), Op: "decode", Err: err}
		b.reject(p, "", err)
		return err
	}

	switch msg.Type {
	case protocol.TypeRegister:
		b.register(p, msg)
		return nil

	case protocol.TypePing:
		b.reply(p, protocol.NewPong())
		return nil

	case protocol.TypeAction:
		call := &Call{
			SessionID:   p.SessionID(),
			ComponentID: msg.ComponentID,
			Method:      msg.Method,
			Origin:      OriginWebSocket,
		}
		if _, err := b.Invoke(ctx, call, msg.Event); err != nil {
			b.reject(p, msg.ComponentID, err)
			return err
		}
		return nil

	case protocol.TypeUpdateState:
		if err := b.ApplyState(ctx, p.SessionID(), msg.ComponentID, msg.State); err != nil {
			b.reject(p, msg.ComponentID, err)
			return err
		}
		return nil
	}

	// DecodeClientMessage admits nothing else.
	err = &ProtocolError{SessionID: p.SessionID(), Op: "dispatch", Err: fmt.Errorf("unhandled type %q", msg.Type)}
	b.reject(p, "", err)
	return err
}

func (b *Broker) register(p Peer, msg *protocol.Message) {
	if prev := p.SessionID(); prev != "" && prev != msg.SessionID {
		b.sessions.RemoveIfTransport(prev, p)
	}
	s, replaced := b.sessions.Upsert(msg.SessionID, p, msg.Components)
	p.Bind(msg.SessionID)
	b.observer.SessionsChanged(b.sessions.Len())
	b.logger.Debug("session registered",
		"session_id", s.ID,
		"components", len(msg.Components),
		"replaced", replaced)
	b.reply(p, protocol.NewRegistered(s.ID, s.Interest()))
}

// reject answers p with an error message describing err.
func (b *Broker) reject(p Peer, componentID string, err error) {
	code := errorCode(err)
	b.observer.ProtocolError(code)

	var he *HandlerError
	if errors.As(err, &he) {
		attrs := []any{"session_id", p.SessionID(), "component_id", he.ComponentID, "method", he.Method}
		if he.Panic != nil {
			attrs = append(attrs, "panic", he.Panic, "stack", string(he.Stack))
		} else {
			attrs = append(attrs, "error", he.Err)
		}
		b.logger.Error("action failed", attrs...)
	} else {
		b.logger.Warn("message rejected", "session_id", p.SessionID(), "code", code, "error", err)
	}

	msg := protocol.NewError(code, errorText(err))
	msg.ComponentID = componentID
	b.reply(p, msg)
}

// reply sends msg to p. A failed write drops p's session.
func (b *Broker) reply(p Peer, msg *protocol.Message) {
	if err := p.Send(msg); err != nil {
		b.drop(p.SessionID(), p, err)
		return
	}
	b.observer.MessageSent(msg.Type)
}

// Invoke resolves call.ComponentID and call.Method, runs the handler under
// the component's execution lock and, for socket and Mutate origins, pushes
// the result to interested sessions. A faulting handler leaves the
// component's state as it was before the call.
//
// For OriginHTTP the component is rendered and returned without fan-out;
// its dirty flag stays set so the next commit delivers the change to
// subscribers.
func (b *Broker) Invoke(ctx context.Context, call *Call, event map[string]any) (*component.Snapshot, error) {
	c, ok := b.components.Get(call.ComponentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, call.ComponentID)
	}
	h, ok := b.bindings.Resolve(c, call.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrActionNotRegistered, c.Kind(), call.Method)
	}
	call.Kind = c.Kind()
	return b.execute(ctx, call, c, func(ctx context.Context) error {
		return h(ctx, c, component.Event(event))
	})
}

// ApplyState replaces a component's state with one pushed by a client.
// It is refused unless AllowClientState is set.
func (b *Broker) ApplyState(ctx context.Context, sessionID, componentID string, state map[string]any) error {
	if !b.config.AllowClientState {
		return ErrStateUpdatesDisabled
	}
	if sessionID == "" {
		return ErrNotRegistered
	}
	c, ok := b.components.Get(componentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, componentID)
	}
	call := &Call{
		SessionID:   sessionID,
		ComponentID: componentID,
		Kind:        c.Kind(),
		Method:      string(protocol.TypeUpdateState),
		Origin:      OriginWebSocket,
	}
	_, err := b.execute(ctx, call, c, func(context.Context) error {
		return c.Replace(state)
	})
	return err
}

// Mutate applies fn to a component as one locked step and pushes the result.
// Long-running work should happen before calling Mutate, never inside fn.
func (b *Broker) Mutate(ctx context.Context, componentID string, fn func(c *component.Component) error) error {
	c, ok := b.components.Get(componentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, componentID)
	}
	call := &Call{ComponentID: componentID, Kind: c.Kind(), Method: "mutate", Origin: OriginMutate}
	_, err := b.execute(ctx, call, c, func(context.Context) error {
		return fn(c)
	})
	return err
}

// execute runs fn under c's execution lock with middleware, panic recovery
// and rollback, then renders.
func (b *Broker) execute(ctx context.Context, call *Call, c *component.Component, fn func(context.Context) error) (*component.Snapshot, error) {
	var snap *component.Snapshot
	var rec *store.Record
	err := c.Exclusive(func() error {
		cp := c.Checkpoint()
		before := c.Version()

		err := safeInvoke(ctx, call, func(ctx context.Context) error {
			return b.wrap(ctx, call, func(ctx context.Context) error {
				return safeInvoke(ctx, call, fn)
			})
		})
		if err != nil {
			c.Rollback(cp)
			return err
		}

		if call.Origin == OriginHTTP {
			html, err := c.Render()
			if err != nil {
				c.Rollback(cp)
				return err
			}
			snap = &component.Snapshot{ID: c.ID(), Kind: c.Kind(), HTML: html, State: c.State(), Version: c.Version()}
		} else if c.Dirty() {
			s, err := c.Commit()
			if err != nil {
				c.Rollback(cp)
				return err
			}
			snap = &s
			b.publish(s)
		}

		if c.Version() != before {
			rec = b.record(c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.persist(ctx, c, rec)
	return snap, nil
}

// safeInvoke runs fn, converting returned errors and panics to *HandlerError.
func safeInvoke(ctx context.Context, call *Call, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				ComponentID: call.ComponentID,
				Method:      call.Method,
				Panic:       r,
				Stack:       debug.Stack(),
			}
		}
	}()
	if err := fn(ctx); err != nil {
		var he *HandlerError
		if errors.As(err, &he) {
			return err
		}
		return &HandlerError{ComponentID: call.ComponentID, Method: call.Method, Err: err}
	}
	return nil
}
