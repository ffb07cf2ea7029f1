package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/client"
	"github.com/vango-dev/vango-live/pkg/server"
)

// FileName is the configuration file looked up by Load.
const FileName = "live.json"

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config is the content of live.json.
type Config struct {
	Server ServerConfig `json:"server"`
	Broker BrokerConfig `json:"broker"`
	Store  StoreConfig  `json:"store"`
	Log    LogConfig    `json:"log"`
	Client ClientConfig `json:"client"`

	path string
}

// ServerConfig mirrors the serializable part of server.ServerConfig.
type ServerConfig struct {
	Address           string   `json:"address,omitempty"`
	WebSocketPath     string   `json:"webSocketPath,omitempty"`
	FallbackPath      string   `json:"fallbackPath,omitempty"`
	DisableFallback   bool     `json:"disableFallback,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty"`
	ReadTimeout       Duration `json:"readTimeout,omitempty"`
	ShutdownTimeout   Duration `json:"shutdownTimeout,omitempty"`
	MaxMessageSize    int64    `json:"maxMessageSize,omitempty"`
	MaxBodySize       int64    `json:"maxBodySize,omitempty"`

	// AllowedOrigins replaces the same-origin check when set. "*" accepts
	// any origin.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	AccessLog      bool `json:"accessLog,omitempty"`
	DisableMetrics bool `json:"disableMetrics,omitempty"`
	Tracing        bool `json:"tracing,omitempty"`
}

// BrokerConfig mirrors the serializable part of server.BrokerConfig.
type BrokerConfig struct {
	AllowClientState bool              `json:"allowClientState,omitempty"`
	EvalScripts      map[string]string `json:"evalScripts,omitempty"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	// Backend is memory, sqlite or s3. Empty disables persistence.
	Backend string `json:"backend,omitempty"`

	// Path is the sqlite database file.
	Path  string `json:"path,omitempty"`
	Table string `json:"table,omitempty"`

	Bucket   string `json:"bucket,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	Timeout Duration `json:"timeout,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// ClientConfig mirrors the serializable part of client.Config.
type ClientConfig struct {
	URL               string   `json:"url,omitempty"`
	SessionID         string   `json:"sessionId,omitempty"`
	Components        []string `json:"components,omitempty"`
	DisableReconnect  bool     `json:"disableReconnect,omitempty"`
	BaseDelay         Duration `json:"baseDelay,omitempty"`
	MaxDelay          Duration `json:"maxDelay,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty"`
	MaxQueue          int      `json:"maxQueue,omitempty"`
	MaxMissedPongs    int      `json:"maxMissedPongs,omitempty"`
	AllowedScripts    []string `json:"allowedScripts,omitempty"`
}

// New returns a Config with defaults.
func New() *Config {
	s := server.DefaultServerConfig()
	c := client.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:           s.Address,
			WebSocketPath:     s.WebSocketPath,
			FallbackPath:      s.FallbackPath,
			HeartbeatInterval: Duration(s.HeartbeatInterval),
			WriteTimeout:      Duration(s.WriteTimeout),
			ReadTimeout:       Duration(s.ReadTimeout),
			ShutdownTimeout:   Duration(s.ShutdownTimeout),
			MaxMessageSize:    s.MaxMessageSize,
			MaxBodySize:       s.MaxBodySize,
		},
		Store: StoreConfig{
			Table:   "live_snapshots",
			Timeout: Duration(server.DefaultBrokerConfig().StoreTimeout),
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Client: ClientConfig{
			URL:               "ws://localhost:8080" + s.WebSocketPath,
			BaseDelay:         Duration(c.BaseDelay),
			MaxDelay:          Duration(c.MaxDelay),
			HeartbeatInterval: Duration(c.HeartbeatInterval),
		},
	}
}

// Load reads live.json from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if stderrors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	return cfg, err
}

// LoadFile reads the configuration at path over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, errors.New(errors.CodeConfigRead).Wrap(err)
	}
	cfg := New()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			Wrap(err).
			WithSuggestion("check " + path + " for typos in key names and quote durations, e.g. \"30s\"")
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigParse).Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}
	c.path = path
	return nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string { return c.path }

// Validate checks value ranges and the store backend.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, errors.New(errors.CodeConfigInvalid).
			WithField(field).
			Wrap(fmt.Errorf(format, args...)))
	}
	durations := []struct {
		field string
		d     Duration
	}{
		{"server.heartbeatInterval", c.Server.HeartbeatInterval},
		{"server.writeTimeout", c.Server.WriteTimeout},
		{"server.readTimeout", c.Server.ReadTimeout},
		{"client.baseDelay", c.Client.BaseDelay},
		{"client.maxDelay", c.Client.MaxDelay},
	}
	for _, f := range durations {
		if f.d < 0 {
			invalid(f.field, "must not be negative")
		}
	}
	if c.Client.MaxQueue < 0 {
		invalid("client.maxQueue", "must not be negative")
	}
	if c.Client.BaseDelay > c.Client.MaxDelay {
		invalid("client.baseDelay", "must not exceed client.maxDelay")
	}
	if _, err := c.Log.level(); err != nil {
		invalid("log.level", "%v", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		invalid("log.format", "must be text or json, got %q", c.Log.Format)
	}
	switch c.Store.Backend {
	case "", BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			invalid("store.path", "required for the sqlite backend")
		}
	case BackendS3:
		if c.Store.Bucket == "" {
			invalid("store.bucket", "required for the s3 backend")
		}
	default:
		errs = append(errs, errors.New(errors.CodeUnknownStore).
			WithField("store.backend").
			Wrap(fmt.Errorf("%q", c.Store.Backend)))
	}
	if err := c.ServerConfig(nil).ValidateConfig(); err != nil {
		errs = append(errs, errors.New(errors.CodeConfigInvalid).WithField("server").Wrap(err))
	}
	return stderrors.Join(errs...)
}

// ServerConfig converts the server section.
func (c *Config) ServerConfig(logger *slog.Logger) *server.ServerConfig {
	s := server.DefaultServerConfig()
	s.Address = c.Server.Address
	s.WebSocketPath = c.Server.WebSocketPath
	s.FallbackPath = c.Server.FallbackPath
	s.DisableFallback = c.Server.DisableFallback
	s.HeartbeatInterval = c.Server.HeartbeatInterval.D()
	s.WriteTimeout = c.Server.WriteTimeout.D()
	s.ReadTimeout = c.Server.ReadTimeout.D()
	s.ShutdownTimeout = c.Server.ShutdownTimeout.D()
	s.MaxMessageSize = c.Server.MaxMessageSize
	s.MaxBodySize = c.Server.MaxBodySize
	s.AccessLog = c.Server.AccessLog
	s.DisableMetrics = c.Server.DisableMetrics
	if len(c.Server.AllowedOrigins) > 0 {
		s.CheckOrigin = server.OriginAllowlist(c.Server.AllowedOrigins)
	}
	s.Logger = logger
	return s
}

// BrokerConfig converts the broker section. The caller sets the store,
// middleware and observer.
func (c *Config) BrokerConfig(logger *slog.Logger) *server.BrokerConfig {
	b := server.DefaultBrokerConfig()
	b.AllowClientState = c.Broker.AllowClientState
	b.EvalScripts = c.Broker.EvalScripts
	if c.Store.Timeout > 0 {
		b.StoreTimeout = c.Store.Timeout.D()
	}
	b.Logger = logger
	return b
}

// ClientConfig converts the client section.
func (c *Config) ClientConfig(logger *slog.Logger) client.Config {
	cc := client.DefaultConfig()
	cc.URL = c.Client.URL
	cc.SessionID = c.Client.SessionID
	cc.Components = c.Client.Components
	cc.DisableReconnect = c.Client.DisableReconnect
	cc.BaseDelay = c.Client.BaseDelay.D()
	cc.MaxDelay = c.Client.MaxDelay.D()
	cc.HeartbeatInterval = c.Client.HeartbeatInterval.D()
	cc.MaxQueue = c.Client.MaxQueue
	cc.MaxMissedPongs = c.Client.MaxMissedPongs
	cc.AllowedScripts = c.Client.AllowedScripts
	cc.Logger = logger
	return cc
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lv slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return lv, nil
}
