package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

var (
	// ErrQueueFull is returned by Send when the bounded offline queue is full.
	ErrQueueFull = errors.New("client: outbound queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")

	// ErrNoSessionID is returned by Start without a session id.
	ErrNoSessionID = errors.New("client: session id required")

	errPongTimeout = errors.New("client: pong timeout")
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Manager is the client transport manager.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	sock      Socket
	gen       uint64 // bumped per connection; stale goroutines compare it
	queue     []*protocol.Message
	interest  []string
	delay     time.Duration
	attempts  int
	retry     Timer
	heartbeat Timer
	missed    int
	closed    bool
	allowed   map[string]struct{}

	// writeMu orders socket writes, and holds back Send while the queue
	// is being flushed.
	writeMu sync.Mutex
}

// New creates a Manager. Nothing is dialed until Start.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	allowed := make(map[string]struct{}, len(cfg.AllowedScripts))
	for _, code := range cfg.AllowedScripts {
		allowed[code] = struct{}{}
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "client"),
		interest: append([]string(nil), cfg.Components...),
		delay:    cfg.BaseDelay,
		allowed:  allowed,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Delay returns the wait before the next reconnect attempt.
func (m *Manager) Delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

// Queued returns the number of messages waiting for a connection.
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Start dials once. A failed dial is returned and, unless reconnect is
// disabled, a retry is scheduled.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.SessionID == "" {
		return ErrNoSessionID
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	from := m.setState(StateConnecting)
	m.mu.Unlock()
	m.notify(from, StateConnecting)

	return m.connect(ctx)
}

// connect dials and, on success, registers, flushes and starts reading.
func (m *Manager) connect(ctx context.Context) error {
	sock, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.logger.Debug("dial failed", "url", m.cfg.URL, "error", err)
		m.mu.Lock()
		gen := m.gen
		m.mu.Unlock()
		m.down(gen, nil, err)
		return err
	}

	m.writeMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.writeMu.Unlock()
		sock.Close()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	m.sock = sock
	m.delay = m.cfg.BaseDelay
	m.attempts = 0
	m.missed = 0
	pending := m.queue
	m.queue = nil
	register := protocol.NewRegister(m.cfg.SessionID, m.interest)
	from := m.setState(StateConnected)
	m.mu.Unlock()

	err = m.write(sock, register)
	for i, msg := range pending {
		if err != nil {
			m.requeue(pending[i:])
			break
		}
		err = m.write(sock, msg)
		if err != nil {
			m.requeue(pending[i:])
			break
		}
	}
	m.writeMu.Unlock()

	m.notify(from, StateConnected)
	if err != nil {
		m.down(gen, sock, err)
		return err
	}

	m.scheduleHeartbeat(gen)
	go m.readLoop(gen, sock)
	return nil
}

// requeue puts unsent messages back at the front of the queue.
func (m *Manager) requeue(msgs []*protocol.Message) {
	m.mu.Lock()
	m.queue = append(append([]*protocol.Message(nil), msgs...), m.queue...)
	m.mu.Unlock()
}

func (m *Manager) write(sock Socket, msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return sock.WriteMessage(data)
}

// down handles the loss of connection gen: it closes the socket, stops the
// heartbeat and schedules the next attempt with the current delay.
func (m *Manager) down(gen uint64, sock Socket, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state == StateDisconnected || m.state == StateReconnecting {
		m.mu.Unlock()
		return
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	if m.sock != nil && (sock == nil || m.sock == sock) {
		m.sock.Close()
		m.sock = nil
	}

	next := StateReconnecting
	if m.closed || m.cfg.DisableReconnect {
		next = StateDisconnected
	}
	from := m.setState(next)
	if next == StateReconnecting {
		wait := m.delay
		m.attempts++
		m.delay = time.Duration(float64(m.delay) * m.cfg.Multiplier)
		if m.delay > m.cfg.MaxDelay {
			m.delay = m.cfg.MaxDelay
		}
		m.retry = m.cfg.Clock.AfterFunc(wait, m.reconnect)
		m.logger.Debug("connection lost", "error", cause, "retry_in", wait, "attempt", m.attempts)
	}
	m.mu.Unlock()
	m.notify(from, next)
}

// reconnect is the retry timer callback.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.closed || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	from := m.setState(StateConnecting)
	m.mu.Unlock()
	m.notify(from, StateConnecting)

	m.connect(context.Background())
}

func (m *Manager) scheduleHeartbeat(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != StateConnected {
		return
	}
	m.heartbeat = m.cfg.Clock.AfterFunc(m.cfg.HeartbeatInterval, func() { m.beat(gen) })
}

// beat sends one ping, enforcing MaxMissedPongs when set.
func (m *Manager) beat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	if m.cfg.MaxMissedPongs > 0 && m.missed >= m.cfg.MaxMissedPongs {
		sock := m.sock
		m.mu.Unlock()
		m.down(gen, sock, errPongTimeout)
		return
	}
	m.missed++
	sock := m.sock
	m.mu.Unlock()

	m.writeMu.Lock()
	err := m.write(sock, protocol.NewPing())
	m.writeMu.Unlock()
	if err != nil {
		m.down(gen, sock, err)
		return
	}
	m.scheduleHeartbeat(gen)
}

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			m.down(gen, sock, err)
			return
		}
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			m.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeUpdate, protocol.TypeBatchUpdate:
		if m.cfg.OnUpdate != nil {
			for _, u := range msg.AllUpdates() {
				m.cfg.OnUpdate(u)
			}
		}
	case protocol.TypeReload:
		if m.cfg.OnReload != nil {
			m.cfg.OnReload()
		}
	case protocol.TypeEval:
		if _, ok := m.allowed[msg.Code]; !ok {
			m.logger.Warn("ignoring eval outside allowlist", "bytes", len(msg.Code))
			return
		}
		if m.cfg.OnEval != nil {
			m.cfg.OnEval(msg.Code)
		}
	case protocol.TypeError:
		m.logger.Debug("server error", "code", msg.ErrorCode, "message", msg.Message)
		if m.cfg.OnError != nil {
			m.cfg.OnError(msg)
		}
	case protocol.TypeRegistered:
		if m.cfg.OnRegistered != nil {
			m.cfg.OnRegistered(msg)
		}
	case protocol.TypePong:
		m.mu.Lock()
		m.missed = 0
		m.mu.Unlock()
	}
}

// Send writes msg now when connected, or queues it for the next connection.
// A write failure queues msg and starts a reconnect.
func (m *Manager) Send(msg *protocol.Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateConnected {
		defer m.mu.Unlock()
		return m.enqueueLocked(msg)
	}
	m.mu.Unlock()

	m.writeMu.Lock()
	m.mu.Lock()
	if m.state != StateConnected {
		// Lost the connection while waiting for the writer.
		err := m.enqueueLocked(msg)
		m.mu.Unlock()
		m.writeMu.Unlock()
		return err
	}
	sock, gen := m.sock, m.gen
	m.mu.Unlock()
	err := m.write(sock, msg)
	m.writeMu.Unlock()

	if err != nil {
		m.mu.Lock()
		qerr := m.enqueueLocked(msg)
		m.mu.Unlock()
		m.down(gen, sock, err)
		return qerr
	}
	return nil
}

func (m *Manager) enqueueLocked(msg *protocol.Message) error {
	if m.cfg.MaxQueue > 0 && len(m.queue) >= m.cfg.MaxQueue {
		return ErrQueueFull
	}
	m.queue = append(m.queue, msg)
	return nil
}

// Action sends an action message.
func (m *Manager) Action(componentID, method string, event map[string]any) error {
	return m.Send(protocol.NewAction(componentID, method, event))
}

// Subscribe adds component ids to the interest set and re-registers when
// connected. Offline, the new set is sent on the next connect.
func (m *Manager) Subscribe(ids ...string) error {
	m.mu.Lock()
	seen := make(map[string]bool, len(m.interest))
	for _, id := range m.interest {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			m.interest = append(m.interest, id)
			seen[id] = true
		}
	}
	connected := m.state == StateConnected
	msg := protocol.NewRegister(m.cfg.SessionID, m.interest)
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.Send(msg)
}

// Close stops reconnecting and closes the socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	sock := m.sock
	m.sock = nil
	m.gen++
	from := m.setState(StateDisconnected)
	m.mu.Unlock()

	m.notify(from, StateDisconnected)
	if sock != nil {
		return sock.Close()
	}
	return nil
}

// setState must be called with mu held. It returns the previous state.
func (m *Manager) setState(s State) State {
	from := m.state
	m.state = s
	return from
}

func (m *Manager) notify(from, to State) {
	if from != to && m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(from, to)
	}
}
