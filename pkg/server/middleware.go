package server

import (
	"context"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

// Origin names the path an action arrived on.
type Origin string

const (
	OriginWebSocket Origin = "ws"
	OriginHTTP      Origin = "http"
	OriginMutate    Origin = "mutate"
)

// Call describes one action invocation.
type Call struct {
	// SessionID is the originating session; empty for HTTP and Mutate.
	SessionID   string
	ComponentID string
	Kind        string
	Method      string
	Origin      Origin
}

// Middleware wraps an action invocation. It runs while the component's
// execution lock is held and must call next exactly once to run the handler.
type Middleware func(ctx context.Context, call *Call, next func(context.Context) error) error

// Observer receives broker events that are not tied to a single call.
type Observer interface {
	// SessionsChanged reports the live session count.
	SessionsChanged(n int)

	// ComponentsChanged reports the mounted component count.
	ComponentsChanged(n int)

	// MessageSent counts one message written to a session.
	MessageSent(t protocol.MessageType)

	// SessionDropped counts a session removed after a failed write.
	SessionDropped()

	// ProtocolError counts a rejected inbound message by wire code.
	ProtocolError(code protocol.ErrorCode)
}

type nopObserver struct{}

func (nopObserver) SessionsChanged(int)              {}
func (nopObserver) ComponentsChanged(int)            {}
func (nopObserver) MessageSent(protocol.MessageType) {}
func (nopObserver) SessionDropped()                  {}
func (nopObserver) ProtocolError(protocol.ErrorCode) {}

// chain composes middleware so that mws[0] is outermost.
func chain(mws []Middleware) Middleware {
	return func(ctx context.Context, call *Call, next func(context.Context) error) error {
		run := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], run
			run = func(ctx context.Context) error {
				return mw(ctx, call, inner)
			}
		}
		return run(ctx)
	}
}
