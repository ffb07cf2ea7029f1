package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/vango-live/pkg/store"
)

// BrokerConfig configures dispatch and propagation.
type BrokerConfig struct {
	// AllowClientState accepts update_state messages from clients. When false
	// (the default) they are answered with a state_updates_disabled error.
	AllowClientState bool

	// EvalScripts is the allowlist of scripts the host may push to clients
	// with Broker.Eval, keyed by name. Nothing else can be sent as eval.
	EvalScripts map[string]string

	// Store receives a snapshot of each component after every committed
	// change. Nil disables persistence.
	Store store.Store

	// StoreTimeout bounds each snapshot save.
	// Default: 5 seconds.
	StoreTimeout time.Duration

	// Middleware wraps every action invocation, outermost first.
	Middleware []Middleware

	// Observer receives broker events for metrics. Nil disables it.
	Observer Observer

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultBrokerConfig returns a BrokerConfig with defaults applied.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		StoreTimeout: 5 * time.Second,
	}
}

// ServerConfig holds configuration for the HTTP and WebSocket surface.
type ServerConfig struct {
	// Address is the listen address. Default: ":8080".
	Address string

	// WebSocketPath is where the persistent channel is served.
	// Default: "/components/ws".
	WebSocketPath string

	// FallbackPath is the HTTP fallback endpoint.
	// Default: "/components/action".
	FallbackPath string

	// DisableFallback leaves the HTTP fallback unmounted.
	DisableFallback bool

	// HeartbeatInterval is the time between WebSocket ping frames.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadTimeout closes a connection that sends nothing (not even a pong)
	// for this long. Zero disables the deadline.
	// Default: 90 seconds.
	ReadTimeout time.Duration

	// MaxMessageSize is the largest accepted inbound frame in bytes.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxBodySize is the largest accepted fallback request body in bytes.
	// Default: 64KB.
	MaxBodySize int64

	// ReadBufferSize and WriteBufferSize size the upgrader buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin of WebSocket upgrades.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// MetricsGatherer is served on /metrics. Nil serves the default gatherer.
	MetricsGatherer prometheus.Gatherer

	// DisableMetrics leaves /metrics unmounted.
	DisableMetrics bool

	// AccessLog logs one line per HTTP request.
	AccessLog bool

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		WebSocketPath:     "/components/ws",
		FallbackPath:      "/components/action",
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       90 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxBodySize:       64 * 1024,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		ShutdownTimeout:   30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultServerConfig.
func (c *ServerConfig) withDefaults() *ServerConfig {
	d := DefaultServerConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.WebSocketPath == "" {
		out.WebSocketPath = d.WebSocketPath
	}
	if out.FallbackPath == "" {
		out.FallbackPath = d.FallbackPath
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = d.HeartbeatInterval
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.MaxBodySize <= 0 {
		out.MaxBodySize = d.MaxBodySize
	}
	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize <= 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// ValidateConfig reports configuration that cannot be served.
func (c *ServerConfig) ValidateConfig() error {
	var errs []error
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		errs = append(errs, errors.New("server: WebSocketPath must start with /"))
	}
	if !c.DisableFallback && !strings.HasPrefix(c.FallbackPath, "/") {
		errs = append(errs, errors.New("server: FallbackPath must start with /"))
	}
	if !c.DisableFallback && c.FallbackPath == c.WebSocketPath {
		errs = append(errs, errors.New("server: FallbackPath and WebSocketPath must differ"))
	}
	if c.ReadTimeout > 0 && c.ReadTimeout <= c.HeartbeatInterval {
		errs = append(errs, errors.New("server: ReadTimeout must exceed HeartbeatInterval"))
	}
	return errors.Join(errs...)
}

// SameOriginCheck accepts upgrades whose Origin host matches the request host.
// Requests without an Origin header (non-browser clients) are accepted.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}

// OriginAllowlist accepts upgrades whose Origin is one of origins, compared
// as scheme://host. "*" accepts any origin. Requests without an Origin are
// accepted.
func OriginAllowlist(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		return allowed[strings.TrimSuffix(strings.ToLower(origin), "/")]
	}
}
