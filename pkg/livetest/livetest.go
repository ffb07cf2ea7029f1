package livetest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/vango-live/pkg/component"
	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/protocol"
	"github.com/vango-dev/vango-live/pkg/server"
)

// DefaultTimeout bounds every wait for a server message.
var DefaultTimeout = 5 * time.Second

// Option adjusts the broker configuration before the harness starts.
type Option func(*server.BrokerConfig)

// WithClientState accepts update_state messages.
func WithClientState() Option {
	return func(c *server.BrokerConfig) { c.AllowClientState = true }
}

// WithEvalScripts sets the eval allowlist.
func WithEvalScripts(scripts map[string]string) Option {
	return func(c *server.BrokerConfig) { c.EvalScripts = scripts }
}

// Harness is a running server with the given kinds registered.
type Harness struct {
	Broker *server.Broker
	Server *server.Server
	HTTP   *httptest.Server
}

// NewHarness starts a server. Logging is discarded.
func NewHarness(t *testing.T, kinds []component.Kind, opts ...Option) *Harness {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	bc := server.DefaultBrokerConfig()
	bc.Logger = quiet
	for _, opt := range opts {
		opt(bc)
	}
	b := server.NewBroker(bc)
	for _, k := range kinds {
		b.RegisterKind(k)
	}

	sc := server.DefaultServerConfig()
	sc.Logger = quiet
	sc.DisableMetrics = true
	sc.CheckOrigin = func(*http.Request) bool { return true }
	srv, err := server.New(b, sc)
	if err != nil {
		t.Fatalf("livetest: server.New: %v", err)
	}
	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	return &Harness{Broker: b, Server: srv, HTTP: ts}
}

// Mount mounts a component or fails the test.
func (h *Harness) Mount(t *testing.T, kind, id string) *component.Component {
	t.Helper()
	c, err := h.Broker.Mount(kind, id)
	if err != nil {
		t.Fatalf("Mount(%s, %s) error = %v", kind, id, err)
	}
	return c
}

// URL returns the WebSocket URL.
func (h *Harness) URL() string {
	return "ws" + strings.TrimPrefix(h.HTTP.URL, "http") + h.Server.Config().WebSocketPath
}

// Client is a raw protocol client.
type Client struct {
	conn *websocket.Conn
}

// Dial connects and registers interest in components.
func (h *Harness) Dial(t *testing.T, sessionID string, components ...string) *Client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.URL(), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", h.URL(), err)
	}
	c := &Client{conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	c.Send(t, protocol.NewRegister(sessionID, components))
	c.Expect(t, protocol.TypeRegistered)
	return c
}

// Send writes one message.
func (c *Client) Send(t *testing.T, m *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode %s: %v", m.Type, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s: %v", m.Type, err)
	}
}

// Next reads the next server message.
func (c *Client) Next(t *testing.T) *protocol.Message {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := protocol.DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

// Expect reads the next message and fails unless it has type want.
func (c *Client) Expect(t *testing.T, want protocol.MessageType) *protocol.Message {
	t.Helper()
	m := c.Next(t)
	if m.Type != want {
		t.Fatalf("got %s message (%s), want %s", m.Type, m.Message, want)
	}
	return m
}

// Action sends an action and returns the update for componentID. It fails
// on an error message.
func (c *Client) Action(t *testing.T, componentID, method string, event map[string]any) protocol.Update {
	t.Helper()
	c.Send(t, protocol.NewAction(componentID, method, event))
	for {
		m := c.Next(t)
		if m.Type == protocol.TypeError {
			t.Fatalf("%s.%s: %s (%s)", componentID, method, m.Message, m.ErrorCode)
		}
		for _, u := range m.AllUpdates() {
			if u.ComponentID == componentID {
				return u
			}
		}
	}
}

// ActionError sends an action that must fail and returns the error message.
func (c *Client) ActionError(t *testing.T, componentID, method string, event map[string]any) *protocol.Message {
	t.Helper()
	c.Send(t, protocol.NewAction(componentID, method, event))
	return c.Expect(t, protocol.TypeError)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Render renders a mounted component or fails the test.
func (h *Harness) Render(t *testing.T, id string) string {
	t.Helper()
	c, ok := h.Broker.Components().Get(id)
	if !ok {
		t.Fatalf("component %s not mounted", id)
	}
	html, err := c.Render()
	if err != nil {
		t.Fatalf("render %s: %v", id, err)
	}
	return html
}

// ExpectContains asserts that markup contains expected.
//
// Example:
//
//	livetest.ExpectContains(t, u.HTML, "<span>1</span>")
func ExpectContains(t *testing.T, html, expected string) {
	t.Helper()
	if !strings.Contains(html, expected) {
		t.Errorf("expected markup to contain %q, got:\n%s", expected, truncate(html, 500))
	}
}

// ExpectNotContains asserts that markup does not contain unexpected.
func ExpectNotContains(t *testing.T, html, unexpected string) {
	t.Helper()
	if strings.Contains(html, unexpected) {
		t.Errorf("expected markup to NOT contain %q, got:\n%s", unexpected, truncate(html, 500))
	}
}

// ExpectAction asserts that markup has an element whose data-action lists
// the descriptor eventType->method.
func ExpectAction(t *testing.T, html, eventType, method string) {
	t.Helper()
	needle := markup.On(eventType, method)
	// html.Render escapes '>' inside attribute values.
	escaped := strings.ReplaceAll(needle, ">", "&gt;")
	if !strings.Contains(html, needle) && !strings.Contains(html, escaped) {
		t.Errorf("expected an element with %s=%q, got:\n%s", markup.AttrAction, needle, truncate(html, 500))
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
