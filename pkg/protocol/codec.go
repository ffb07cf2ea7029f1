package protocol

import (
	"bytes"
	"encoding/json"
)

// Encode serializes a message to its JSON wire form.
// Markup is written verbatim: <, > and & are not escaped.
func Encode(m *Message) ([]byte, error) {
	return marshal(m)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON writes exactly the fields that belong to m.Type.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeRegister, TypeRegistered:
		return marshal(struct {
			Type       MessageType `json:"type"`
			SessionID  string      `json:"sessionId"`
			Components []string    `json:"components"`
		}{m.Type, m.SessionID, nonNilStrings(m.Components)})

	case TypeAction:
		return marshal(struct {
			Type        MessageType    `json:"type"`
			ComponentID string         `json:"componentId"`
			Method      string         `json:"method"`
			Event       map[string]any `json:"event"`
		}{m.Type, m.ComponentID, m.Method, nonNilMap(m.Event)})

	case TypeUpdateState:
		return marshal(struct {
			Type        MessageType    `json:"type"`
			ComponentID string         `json:"componentId"`
			State       map[string]any `json:"state"`
		}{m.Type, m.ComponentID, nonNilMap(m.State)})

	case TypeUpdate:
		return marshal(struct {
			Type        MessageType    `json:"type"`
			ComponentID string         `json:"componentId"`
			HTML        string         `json:"html"`
			State       map[string]any `json:"state"`
		}{m.Type, m.ComponentID, m.HTML, nonNilMap(m.State)})

	case TypeBatchUpdate:
		updates := make([]Update, len(m.Updates))
		for i, u := range m.Updates {
			u.State = nonNilMap(u.State)
			updates[i] = u
		}
		return marshal(struct {
			Type    MessageType `json:"type"`
			Updates []Update    `json:"updates"`
		}{m.Type, updates})

	case TypeEval:
		return marshal(struct {
			Type MessageType `json:"type"`
			Code string      `json:"code"`
		}{m.Type, m.Code})

	case TypeError:
		return marshal(struct {
			Type        MessageType `json:"type"`
			Message     string      `json:"message"`
			ErrorCode   ErrorCode   `json:"errorCode,omitempty"`
			ComponentID string      `json:"componentId,omitempty"`
		}{m.Type, m.Message, m.ErrorCode, m.ComponentID})

	default:
		// ping, pong, reload and anything unknown carry only the type.
		return marshal(struct {
			Type MessageType `json:"type"`
		}{m.Type})
	}
}

// Decode parses and validates a message of any known type.
func Decode(data []byte) (*Message, error) {
	// The alias drops the MarshalJSON method so decoding uses the tags.
	type wire Message
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	m := Message(w)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeClientMessage decodes a message sent by a client.
// Server-only types are rejected as unknown.
func DecodeClientMessage(data []byte) (*Message, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if !m.Type.FromClient() {
		return nil, &ParseError{Type: m.Type, Reason: "not a client message type"}
	}
	return m, nil
}

// DecodeServerMessage decodes a message sent by the server.
// Client-only types are rejected as unknown.
func DecodeServerMessage(data []byte) (*Message, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if !m.Type.FromServer() {
		return nil, &ParseError{Type: m.Type, Reason: "not a server message type"}
	}
	return m, nil
}

// Validate checks that the required fields of m.Type are present.
func (m *Message) Validate() error {
	switch m.Type {
	case "":
		return &ParseError{Reason: "missing required field type"}

	case TypeRegister, TypeRegistered:
		if m.SessionID == "" {
			return missingField(m.Type, "sessionId")
		}

	case TypeAction:
		if m.ComponentID == "" {
			return missingField(m.Type, "componentId")
		}
		if m.Method == "" {
			return missingField(m.Type, "method")
		}

	case TypeUpdateState:
		if m.ComponentID == "" {
			return missingField(m.Type, "componentId")
		}
		if m.State == nil {
			return missingField(m.Type, "state")
		}

	case TypeUpdate:
		if m.ComponentID == "" {
			return missingField(m.Type, "componentId")
		}

	case TypeBatchUpdate:
		for _, u := range m.Updates {
			if u.ComponentID == "" {
				return missingField(m.Type, "updates[].componentId")
			}
		}

	case TypeEval:
		if m.Code == "" {
			return missingField(m.Type, "code")
		}

	case TypeError:
		if m.Message == "" {
			return missingField(m.Type, "message")
		}

	case TypePing, TypePong, TypeReload:

	default:
		return &ParseError{Type: m.Type, Reason: "unknown message type"}
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
