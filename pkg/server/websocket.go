package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

// Conn is a server-side WebSocket connection. It is the session.Transport
// the broker pushes through.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	idMu      sync.RWMutex
	sessionID string

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *Conn {
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// SessionID returns the id this connection registered under.
func (c *Conn) SessionID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.sessionID
}

// Bind records the registered session id.
func (c *Conn) Bind(sessionID string) {
	c.idMu.Lock()
	c.sessionID = sessionID
	c.idMu.Unlock()
}

// Send encodes msg and writes it as one text frame.
func (c *Conn) Send(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ping writes a control ping frame.
func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed.Store(true)
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// heartbeat pings the client until the connection closes.
func (c *Conn) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("heartbeat failed", "session_id", c.SessionID(), "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// HandleWebSocket upgrades the request and serves the channel until the
// client goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(s.config.MaxMessageSize)

	conn := newConn(ws, s.config.WriteTimeout, s.logger)
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	readTimeout := s.config.ReadTimeout
	extend := func() {
		if readTimeout > 0 {
			ws.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	go conn.heartbeat(s.config.HeartbeatInterval)
	s.readLoop(s.ctx, conn, extend)
}

// readLoop feeds every frame to the broker until the socket fails.
// Handlers run on this goroutine, so one connection's messages are handled
// in arrival order.
func (s *Server) readLoop(ctx context.Context, conn *Conn, extend func()) {
	defer func() {
		s.broker.Disconnect(conn.SessionID(), conn)
		conn.Close()
	}()

	for {
		extend()
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "session_id", conn.SessionID(), "error", err)
			}
			return
		}
		// Errors were already answered on the connection.
		_ = s.broker.HandleMessage(ctx, conn, data)
	}
}
