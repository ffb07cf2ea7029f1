package protocol

// MessageType is the "type" discriminator of a message.
type MessageType string

const (
	// Client → server.
	TypeRegister    MessageType = "register"
	TypeAction      MessageType = "action"
	TypeUpdateState MessageType = "update_state"
	TypePing        MessageType = "ping"

	// Server → client.
	TypeRegistered  MessageType = "registered"
	TypeUpdate      MessageType = "update"
	TypeBatchUpdate MessageType = "batch_update"
	TypeReload      MessageType = "reload"
	TypeEval        MessageType = "eval"
	TypePong        MessageType = "pong"
	TypeError       MessageType = "error"
)

// String returns the wire name of the type.
func (t MessageType) String() string {
	return string(t)
}

// FromClient reports whether the type is sent by clients.
func (t MessageType) FromClient() bool {
	switch t {
	case TypeRegister, TypeAction, TypeUpdateState, TypePing:
		return true
	default:
		return false
	}
}

// FromServer reports whether the type is sent by the server.
func (t MessageType) FromServer() bool {
	switch t {
	case TypeRegistered, TypeUpdate, TypeBatchUpdate, TypeReload, TypeEval, TypePong, TypeError:
		return true
	default:
		return false
	}
}

// Known reports whether the type is part of the protocol.
func (t MessageType) Known() bool {
	return t.FromClient() || t.FromServer()
}

// Update is one rendered component carried by update and batch_update.
type Update struct {
	ComponentID string         `json:"componentId"`
	HTML        string         `json:"html"`
	State       map[string]any `json:"state"`
}

// Message is the envelope for every frame of the protocol.
// Only the fields belonging to Type are meaningful; see the package
// documentation for the per-type field sets.
type Message struct {
	Type MessageType `json:"type"`

	// register, registered
	SessionID  string   `json:"sessionId,omitempty"`
	Components []string `json:"components,omitempty"`

	// action, update_state, update
	ComponentID string         `json:"componentId,omitempty"`
	Method      string         `json:"method,omitempty"`
	Event       map[string]any `json:"event,omitempty"`
	State       map[string]any `json:"state,omitempty"`
	HTML        string         `json:"html,omitempty"`

	// batch_update
	Updates []Update `json:"updates,omitempty"`

	// eval
	Code string `json:"code,omitempty"`

	// error
	Message   string    `json:"message,omitempty"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
}

// NewRegister creates a register message.
func NewRegister(sessionID string, components []string) *Message {
	return &Message{Type: TypeRegister, SessionID: sessionID, Components: cloneStrings(components)}
}

// NewAction creates an action message.
func NewAction(componentID, method string, event map[string]any) *Message {
	return &Message{Type: TypeAction, ComponentID: componentID, Method: method, Event: event}
}

// NewUpdateState creates an update_state message.
func NewUpdateState(componentID string, state map[string]any) *Message {
	return &Message{Type: TypeUpdateState, ComponentID: componentID, State: state}
}

// NewPing creates a ping message.
func NewPing() *Message {
	return &Message{Type: TypePing}
}

// NewRegistered creates the reply to a register message.
func NewRegistered(sessionID string, components []string) *Message {
	return &Message{Type: TypeRegistered, SessionID: sessionID, Components: cloneStrings(components)}
}

// NewUpdate creates an update message for one component.
func NewUpdate(componentID, html string, state map[string]any) *Message {
	return &Message{Type: TypeUpdate, ComponentID: componentID, HTML: html, State: state}
}

// NewBatchUpdate creates a batch_update message.
func NewBatchUpdate(updates []Update) *Message {
	out := make([]Update, len(updates))
	copy(out, updates)
	return &Message{Type: TypeBatchUpdate, Updates: out}
}

// NewReload creates a reload message.
func NewReload() *Message {
	return &Message{Type: TypeReload}
}

// NewEval creates an eval message.
func NewEval(code string) *Message {
	return &Message{Type: TypeEval, Code: code}
}

// NewPong creates a pong message.
func NewPong() *Message {
	return &Message{Type: TypePong}
}

// NewError creates an error message.
func NewError(code ErrorCode, message string) *Message {
	return &Message{Type: TypeError, ErrorCode: code, Message: message}
}

// AsUpdate returns the update carried by an update message.
func (m *Message) AsUpdate() Update {
	return Update{ComponentID: m.ComponentID, HTML: m.HTML, State: m.State}
}

// AllUpdates returns every update carried by m: one for update, all of them for
// batch_update, none otherwise.
func (m *Message) AllUpdates() []Update {
	switch m.Type {
	case TypeUpdate:
		return []Update{m.AsUpdate()}
	case TypeBatchUpdate:
		return m.Updates
	default:
		return nil
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
