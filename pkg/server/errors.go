package server

import (
	"errors"
	"fmt"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

// Sentinel errors for dispatch outcomes.
var (
	// ErrComponentNotFound is returned when a message names an unknown component.
	ErrComponentNotFound = errors.New("server: component not found")

	// ErrActionNotRegistered is returned when no handler is bound for a method.
	ErrActionNotRegistered = errors.New("server: action not registered")

	// ErrStateUpdatesDisabled is returned for update_state when the broker
	// does not accept client-pushed state.
	ErrStateUpdatesDisabled = errors.New("server: client state updates disabled")

	// ErrNotRegistered is returned when a connection sends before registering.
	ErrNotRegistered = errors.New("server: session not registered")

	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("server: session not found")

	// ErrEvalNotAllowed is returned when asked to send a script that is not in
	// the configured allowlist.
	ErrEvalNotAllowed = errors.New("server: eval script not allowed")

	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrDuplicateComponent is returned by Mount when the id is taken.
	ErrDuplicateComponent = errors.New("server: component already mounted")

	// ErrUnknownKind is returned by Mount for an unregistered kind.
	ErrUnknownKind = errors.New("server: unknown component kind")
)

// HandlerError is a fault raised by an action handler, either as a returned
// error or a recovered panic.
type HandlerError struct {
	ComponentID string
	Method      string
	Err         error  // returned error, nil for panics
	Panic       any    // recovered value, nil for returned errors
	Stack       []byte // stack at the panic site
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("server: handler panic in %s.%s: %v", e.ComponentID, e.Method, e.Panic)
	}
	return fmt.Sprintf("server: handler %s.%s: %v", e.ComponentID, e.Method, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Message is the text reported to the client.
func (e *HandlerError) Message() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s failed: %v", e.Method, e.Panic)
	}
	return e.Err.Error()
}

// ProtocolError is a message that could not be decoded or was invalid on the
// connection it arrived on.
type ProtocolError struct {
	SessionID string
	Op        string
	Err       error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: protocol error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: protocol error in session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// errorCode maps a dispatch error to its wire code.
func errorCode(err error) protocol.ErrorCode {
	var pe *protocol.ParseError
	var he *HandlerError
	switch {
	case errors.As(err, &pe):
		return protocol.ErrParse
	case errors.Is(err, ErrComponentNotFound):
		return protocol.ErrComponentNotFound
	case errors.Is(err, ErrActionNotRegistered):
		return protocol.ErrActionNotRegistered
	case errors.Is(err, ErrStateUpdatesDisabled):
		return protocol.ErrStateUpdateDisabled
	case errors.Is(err, ErrNotRegistered):
		return protocol.ErrNotRegistered
	case errors.As(err, &he):
		return protocol.ErrHandlerFault
	default:
		return protocol.ErrInternal
	}
}

// errorText is the client-facing text for a dispatch error.
func errorText(err error) string {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Message()
	}
	return err.Error()
}
