package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/vango-live/internal/config"
	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/client/dom"
	"github.com/vango-dev/vango-live/pkg/server"
	"github.com/vango-dev/vango-live/pkg/store"
)

func testBrokerConfig() *server.BrokerConfig {
	bc := server.DefaultBrokerConfig()
	bc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return bc
}

func TestNewDemoBroker(t *testing.T) {
	b, err := newDemoBroker(testBrokerConfig(), []string{"counter:c1", "greeter:g1", "clock:clock"})
	if err != nil {
		t.Fatalf("newDemoBroker() error = %v", err)
	}
	if got := strings.Join(b.Components().IDs(), ","); got != "c1,clock,g1" {
		t.Fatalf("IDs()=%s", got)
	}

	tests := []struct {
		mount string
		code  string
	}{
		{"counter", errors.CodeMissingArgument},
		{":id", errors.CodeMissingArgument},
		{"widget:w1", errors.CodeUnknownKind},
	}
	for _, tt := range tests {
		_, err := newDemoBroker(testBrokerConfig(), []string{tt.mount})
		if !stderrors.Is(err, errors.New(tt.code)) {
			t.Fatalf("newDemoBroker(%q) error = %v, want %s", tt.mount, err, tt.code)
		}
	}

	_, err = newDemoBroker(testBrokerConfig(), []string{"counter:x", "clock:x"})
	if !stderrors.Is(err, server.ErrDuplicateComponent) {
		t.Fatalf("duplicate mount error = %v", err)
	}
}

func TestDemoActions(t *testing.T) {
	b, err := newDemoBroker(testBrokerConfig(), []string{"counter:c1", "greeter:g1"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, method := range []string{"increment", "increment", "double"} {
		if _, err := b.Invoke(ctx, &server.Call{ComponentID: "c1", Method: method, Origin: server.OriginWebSocket}, nil); err != nil {
			t.Fatalf("Invoke(%s) error = %v", method, err)
		}
	}
	c, _ := b.Components().Get("c1")
	if c.Int("count") != 4 {
		t.Fatalf("count=%d, want 4", c.Int("count"))
	}

	call := &server.Call{ComponentID: "g1", Method: "greet", Origin: server.OriginWebSocket}
	if _, err := b.Invoke(ctx, call, map[string]any{"fields": map[string]any{"name": "  "}}); err == nil {
		t.Fatal("greet with a blank name succeeded")
	}
	snap, err := b.Invoke(ctx, call, map[string]any{"fields": map[string]any{"name": "Ada"}})
	if err != nil {
		t.Fatalf("greet error = %v", err)
	}
	if !strings.Contains(snap.HTML, "Hello, Ada!") || !strings.Contains(snap.HTML, "1 greeted") {
		t.Fatalf("greeter HTML = %s", snap.HTML)
	}
}

func TestRenderPage(t *testing.T) {
	b, err := newDemoBroker(testBrokerConfig(), []string{"counter:c1", "greeter:g1"})
	if err != nil {
		t.Fatal(err)
	}
	page, err := renderPage(b, "/live/ws")
	if err != nil {
		t.Fatalf("renderPage() error = %v", err)
	}
	if !strings.HasPrefix(page, "<!DOCTYPE html><html>") {
		t.Fatalf("page = %s", page)
	}
	doc, err := dom.Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	if got := webSocketPath(doc.Root()); got != "/live/ws" {
		t.Fatalf("webSocketPath()=%q", got)
	}
	binder := dom.NewBinder(doc, senderFunc(func(string, string, map[string]any) error { return nil }))
	if got := strings.Join(binder.Components(), ","); got != "c1,g1" {
		t.Fatalf("bound components = %s", got)
	}

	rec := httptest.NewRecorder()
	pageHandler(b, "/live/ws")(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != 200 || rec.Body.String() != page {
		t.Fatalf("pageHandler status=%d", rec.Code)
	}
}

func TestResolveWebSocketURL(t *testing.T) {
	tests := []struct {
		page, path, want string
	}{
		{"http://localhost:8080/", "/components/ws", "ws://localhost:8080/components/ws"},
		{"https://example.com/app/page", "/live/ws", "wss://example.com/live/ws"},
		{"http://localhost:8080/x", "", "ws://localhost:8080/components/ws"},
	}
	for _, tt := range tests {
		got, err := resolveWebSocketURL(tt.page, tt.path)
		if err != nil || got != tt.want {
			t.Fatalf("resolveWebSocketURL(%q, %q)=%q, %v; want %q", tt.page, tt.path, got, err, tt.want)
		}
	}
}

type recordedAction struct {
	id, method string
	event      map[string]any
}

func TestRepl(t *testing.T) {
	b, err := newDemoBroker(testBrokerConfig(), []string{"counter:c1", "greeter:g1"})
	if err != nil {
		t.Fatal(err)
	}
	page, err := renderPage(b, "/components/ws")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := dom.Parse(page)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var sent []recordedAction
	binder := dom.NewBinder(doc, senderFunc(func(id, method string, event map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, recordedAction{id, method, event})
		return nil
	}))

	in := strings.NewReader(strings.Join([]string{
		"components",
		"input g1-name Grace Hopper",
		"submit g1-name",
		"click nowhere",
		"click",
		"show c1",
		"bogus",
		"quit",
		"components",
	}, "\n"))
	var out bytes.Buffer
	if err := repl(context.Background(), in, &out, binder); err != nil {
		t.Fatalf("repl() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"c1 g1\n",
		"sent g1.preview\n",
		"sent g1.greet\n",
		`no element "nowhere"`,
		"usage: click <element-id>",
		`<div class="counter" data-component-id="c1">`,
		`unknown command "bogus"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "c1 g1\n") != 1 {
		t.Errorf("commands after quit ran:\n%s", got)
	}

	if len(sent) != 2 {
		t.Fatalf("sent %d actions, want 2", len(sent))
	}
	if v := sent[0].event["value"]; v != "Grace Hopper" {
		t.Fatalf("preview value = %v", v)
	}
	if focus, caret := binder.Focused(); focus == nil || caret != len("Grace Hopper") {
		t.Fatalf("Focused()=%v,%d", focus, caret)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{})
	if err != nil || st != nil {
		t.Fatalf("openStore(empty)=%v, %v; want nil, nil", st, err)
	}

	st, err = openStore(ctx, config.StoreConfig{Backend: config.BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Fatalf("memory backend = %T", st)
	}

	st, err = openStore(ctx, config.StoreConfig{Backend: config.BackendS3, Bucket: "b", Endpoint: "http://127.0.0.1:9000"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.S3Store); !ok {
		t.Fatalf("s3 backend = %T", st)
	}

	st, err = openStore(ctx, config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "live.sqlite3"), Table: "snaps"})
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	defer st.Close()
	if err := st.Save(ctx, store.Record{ID: "c1", Kind: "counter", State: map[string]any{"count": 2}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rec, err := st.Load(ctx, "c1")
	if err != nil || rec == nil || rec.Kind != "counter" {
		t.Fatalf("Load()=%+v, %v", rec, err)
	}

	if _, err := openStore(ctx, config.StoreConfig{Backend: "redis"}); !stderrors.Is(err, errors.New(errors.CodeUnknownStore)) {
		t.Fatalf("openStore(redis) error = %v", err)
	}
}

func TestBench(t *testing.T) {
	for _, shared := range []bool{false, true} {
		opts := &benchOptions{clients: 3, duration: 300 * time.Millisecond, rps: 50, payloadBytes: 24, shared: shared}
		res, err := runBench(context.Background(), opts)
		if err != nil {
			t.Fatalf("runBench(shared=%v) error = %v", shared, err)
		}
		if res.events == 0 || len(res.latencies) != int(res.events) {
			t.Fatalf("runBench(shared=%v) events=%d samples=%d", shared, res.events, len(res.latencies))
		}
		if res.errors != 0 {
			t.Fatalf("runBench(shared=%v) errors=%d", shared, res.errors)
		}
		var out bytes.Buffer
		printBench(&out, opts, res)
		if !strings.Contains(out.String(), "p99:") {
			t.Fatalf("printBench output:\n%s", out.String())
		}
	}
}

func TestMakeTokenAndPercentile(t *testing.T) {
	if got := makeToken(1, 2, 24); len(got) != 24 || !strings.HasPrefix(got, "c1:2:") {
		t.Fatalf("makeToken()=%q", got)
	}
	if got := makeToken(10, 200, 3); got != "c10:200:" {
		t.Fatalf("short makeToken()=%q", got)
	}
	l := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if percentile(l, 0.5) != 5 || percentile(l, 0.99) != 10 || percentile(nil, 0.5) != 0 {
		t.Fatal("percentile mismatch")
	}
}
