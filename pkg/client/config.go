package client

import (
	"log/slog"
	"time"

	"github.com/vango-dev/vango-live/pkg/protocol"
)

// Config configures a Manager.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://host/components/ws.
	URL string

	// SessionID is sent in register on every connect. Required.
	SessionID string

	// Components is the initial interest set.
	Components []string

	// DisableReconnect stops the manager at the first disconnect.
	DisableReconnect bool

	// BaseDelay is the first reconnect delay. Default: 1s.
	BaseDelay time.Duration

	// Multiplier grows the delay after each failed attempt. Default: 2.
	Multiplier float64

	// MaxDelay caps the reconnect delay. Default: 30s.
	MaxDelay time.Duration

	// HeartbeatInterval is the time between pings while connected.
	// Default: 30s.
	HeartbeatInterval time.Duration

	// MaxQueue bounds the offline queue. Zero means unbounded; a long outage
	// then grows the queue without limit.
	MaxQueue int

	// MaxMissedPongs treats the connection as dead after this many pings go
	// unanswered. Zero disables the check.
	MaxMissedPongs int

	// AllowedScripts is the client-side eval allowlist. eval messages whose
	// code is not listed are ignored.
	AllowedScripts []string

	Dialer Dialer
	Clock  Clock
	Logger *slog.Logger

	// Callbacks. All are optional and run on the manager's read goroutine.
	OnUpdate      func(u protocol.Update)
	OnReload      func()
	OnEval        func(code string)
	OnError       func(msg *protocol.Message)
	OnRegistered  func(msg *protocol.Message)
	OnStateChange func(from, to State)
}

// DefaultConfig returns a Config with the reference timings.
func DefaultConfig() Config {
	return Config{
		BaseDelay:         time.Second,
		Multiplier:        2,
		MaxDelay:          30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{}
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
