package protocol

import (
	"fmt"
)

// ErrorCode is the machine-readable kind carried by error messages.
type ErrorCode string

const (
	ErrParse               ErrorCode = "parse_error"            // Malformed frame or unknown type
	ErrComponentNotFound   ErrorCode = "component_not_found"    // No component with that id
	ErrActionNotRegistered ErrorCode = "action_not_registered"  // No binding for the method
	ErrHandlerFault        ErrorCode = "handler_fault"          // Handler returned an error or panicked
	ErrStateUpdateDisabled ErrorCode = "state_updates_disabled" // update_state rejected by server config
	ErrNotRegistered       ErrorCode = "not_registered"         // Message requires a prior register
	ErrInternal            ErrorCode = "internal"               // Anything else
)

// String returns the wire form of the code.
func (c ErrorCode) String() string {
	if c == "" {
		return string(ErrInternal)
	}
	return string(c)
}

// ParseError is returned by Decode for frames that are not valid messages.
type ParseError struct {
	// Type is the decoded type, if the frame got that far.
	Type MessageType

	// Reason is a short human-readable description.
	Reason string

	// Err is the underlying JSON error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("protocol: %s: %s", e.Type, e.Reason)
	}
	return "protocol: " + e.Reason
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

func missingField(t MessageType, field string) *ParseError {
	return &ParseError{Type: t, Reason: "missing required field " + field}
}
