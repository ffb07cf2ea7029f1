package config

import (
	"bytes"
	stderrors "errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/vango-live/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != "" {
		t.Fatalf("Path()=%q, want empty", cfg.Path())
	}
	if cfg.Server.Address != ":8080" || cfg.Server.HeartbeatInterval.D() != 30*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg.Server)
	}
	if cfg.Client.BaseDelay.D() != time.Second || cfg.Client.MaxDelay.D() != 30*time.Second {
		t.Fatalf("client defaults not applied: %+v", cfg.Client)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `{
		"server": {"address": ":9090", "heartbeatInterval": "10s", "accessLog": true, "allowedOrigins": ["*"]},
		"broker": {"allowClientState": true, "evalScripts": {"refresh": "location.reload()"}},
		"store": {"backend": "sqlite", "path": "live.sqlite3", "timeout": "2s"},
		"log": {"level": "debug", "format": "json"},
		"client": {"sessionId": "s1", "components": ["c1"], "maxQueue": 10}
	}`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != filepath.Join(dir, FileName) {
		t.Fatalf("Path()=%q", cfg.Path())
	}

	sc := cfg.ServerConfig(nil)
	if sc.Address != ":9090" || sc.HeartbeatInterval != 10*time.Second || !sc.AccessLog {
		t.Fatalf("ServerConfig()=%+v", sc)
	}
	if sc.WebSocketPath != "/components/ws" || sc.ReadTimeout != 90*time.Second {
		t.Fatalf("unset fields lost their defaults: %+v", sc)
	}
	r := httptest.NewRequest("GET", "http://a.test/components/ws", nil)
	r.Header.Set("Origin", "https://b.test")
	if !sc.CheckOrigin(r) {
		t.Fatal("allowedOrigins [*] did not accept a foreign origin")
	}

	bc := cfg.BrokerConfig(nil)
	if !bc.AllowClientState || bc.EvalScripts["refresh"] != "location.reload()" || bc.StoreTimeout != 2*time.Second {
		t.Fatalf("BrokerConfig()=%+v", bc)
	}

	cc := cfg.ClientConfig(nil)
	if cc.SessionID != "s1" || cc.MaxQueue != 10 || len(cc.Components) != 1 || cc.BaseDelay != time.Second {
		t.Fatalf("ClientConfig()=%+v", cc)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
		field   string
	}{
		{"bad json", `{"server": `, errors.CodeConfigParse, ""},
		{"unknown key", `{"sever": {}}`, errors.CodeConfigParse, ""},
		{"bad duration", `{"server": {"writeTimeout": "soon"}}`, errors.CodeConfigParse, ""},
		{"numeric duration", `{"server": {"writeTimeout": 5}}`, errors.CodeConfigParse, ""},
		{"unknown backend", `{"store": {"backend": "redis"}}`, errors.CodeUnknownStore, "store.backend"},
		{"sqlite without path", `{"store": {"backend": "sqlite"}}`, errors.CodeConfigInvalid, "store.path"},
		{"s3 without bucket", `{"store": {"backend": "s3"}}`, errors.CodeConfigInvalid, "store.bucket"},
		{"negative queue", `{"client": {"maxQueue": -1}}`, errors.CodeConfigInvalid, "client.maxQueue"},
		{"base above max", `{"client": {"baseDelay": "1m"}}`, errors.CodeConfigInvalid, "client.baseDelay"},
		{"bad level", `{"log": {"level": "loud"}}`, errors.CodeConfigInvalid, "log.level"},
		{"bad format", `{"log": {"format": "xml"}}`, errors.CodeConfigInvalid, "log.format"},
		{"server paths", `{"server": {"webSocketPath": "ws"}}`, errors.CodeConfigInvalid, "server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if !stderrors.Is(err, errors.New(tt.code)) {
				t.Fatalf("Load() error = %v, want code %s", err, tt.code)
			}
			if tt.field != "" && !strings.Contains(err.Error(), "("+tt.field+")") {
				t.Fatalf("Load() error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := New()
	cfg.Store.Backend = BackendS3
	cfg.Store.Bucket = "snapshots"
	cfg.Server.ReadTimeout = Duration(2 * time.Minute)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"readTimeout": "2m0s"`)) {
		t.Fatalf("durations not written as strings:\n%s", data)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got.Store.Bucket != "snapshots" || got.Server.ReadTimeout.D() != 2*time.Minute {
		t.Fatalf("LoadFile()=%+v", got)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := New()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}
	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("log output = %q", out)
	}
}
