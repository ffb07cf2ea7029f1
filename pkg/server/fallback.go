package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vango-dev/vango-live/pkg/component"
)

// ActionRequest is the body of a fallback POST.
type ActionRequest struct {
	ComponentID string         `json:"componentId"`
	Method      string         `json:"method"`
	Event       map[string]any `json:"event"`
}

// ActionResponse is the body of every fallback response. Successful responses
// always carry html and state, even when empty.
type ActionResponse struct {
	Success     bool           `json:"success"`
	ComponentID string         `json:"componentId,omitempty"`
	HTML        string         `json:"html,omitempty"`
	State       map[string]any `json:"state,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"errorCode,omitempty"`
}

// handleAction runs one action for a client without a socket. The caller
// gets the new markup in the response; other sessions are not notified.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, ActionResponse{Error: "method not allowed"})
		return
	}

	var req ActionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "malformed request body: " + err.Error(), ErrorCode: "parse_error"})
		return
	}
	if req.ComponentID == "" || req.Method == "" {
		writeJSON(w, http.StatusBadRequest, ActionResponse{Error: "componentId and method are required", ErrorCode: "parse_error"})
		return
	}

	call := &Call{ComponentID: req.ComponentID, Method: req.Method, Origin: OriginHTTP}
	snap, err := s.broker.Invoke(r.Context(), call, req.Event)
	if err != nil {
		s.writeActionError(w, req.ComponentID, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// handleComponent returns the current markup and state of one component.
func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "componentID")
	c, ok := s.broker.Components().Get(id)
	if !ok {
		s.writeActionError(w, id, ErrComponentNotFound)
		return
	}
	html, err := c.Render()
	if err != nil {
		s.writeActionError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, componentResponse{
		Success:     true,
		ComponentID: c.ID(),
		HTML:        html,
		State:       stateOrEmpty(c.State().Map()),
	})
}

func (s *Server) writeActionError(w http.ResponseWriter, componentID string, err error) {
	status := http.StatusInternalServerError
	var he *HandlerError
	switch {
	case errors.Is(err, ErrComponentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrActionNotRegistered):
		status = http.StatusBadRequest
	case errors.As(err, &he):
		status = http.StatusBadRequest
		s.logger.Error("fallback action failed",
			"component_id", he.ComponentID,
			"method", he.Method,
			"error", he.Err,
			"panic", he.Panic)
	default:
		s.logger.Error("fallback action failed", "component_id", componentID, "error", err)
	}
	writeJSON(w, status, ActionResponse{
		ComponentID: componentID,
		Error:       errorText(err),
		ErrorCode:   errorCode(err).String(),
	})
}

// componentResponse is the success form of ActionResponse.
type componentResponse struct {
	Success     bool           `json:"success"`
	ComponentID string         `json:"componentId"`
	HTML        string         `json:"html"`
	State       map[string]any `json:"state"`
}

func snapshotResponse(snap *component.Snapshot) componentResponse {
	return componentResponse{
		Success:     true,
		ComponentID: snap.ID,
		HTML:        snap.HTML,
		State:       stateOrEmpty(snap.State.Map()),
	}
}

func stateOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// writeJSON writes v without HTML-escaping so markup survives byte for byte.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
