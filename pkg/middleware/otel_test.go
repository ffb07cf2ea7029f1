package middleware

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/vango-live/pkg/server"
)

type startedSpan struct {
	name  string
	attrs []attribute.KeyValue
}

type recordingTracer struct {
	noop.Tracer
	started *[]startedSpan
}

func (r recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	*r.started = append(*r.started, startedSpan{name: name, attrs: cfg.Attributes()})
	return r.Tracer.Start(ctx, name, opts...)
}

type recordingProvider struct {
	noop.TracerProvider
	tracer recordingTracer
}

func (p recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func newRecordingProvider() (recordingProvider, *[]startedSpan) {
	var started []startedSpan
	return recordingProvider{tracer: recordingTracer{started: &started}}, &started
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestOpenTelemetry_StartsActionSpan(t *testing.T) {
	tp, started := newRecordingProvider()
	mw := OpenTelemetry(WithTracerProvider(tp))
	call := &server.Call{SessionID: "s1", ComponentID: "c1", Kind: "counter", Method: "increment", Origin: server.OriginWebSocket}

	ran := false
	if err := mw(context.Background(), call, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("next was not called")
	}
	if len(*started) != 1 {
		t.Fatalf("started %d spans, want 1", len(*started))
	}
	span := (*started)[0]
	if span.name != "live.action" {
		t.Fatalf("span name=%q, want live.action", span.name)
	}
	for key, want := range map[string]string{
		"live.component_id":   "c1",
		"live.component_kind": "counter",
		"live.method":         "increment",
		"live.origin":         "ws",
		"live.session_id":     "s1",
	} {
		if got, ok := attrValue(span.attrs, key); !ok || got != want {
			t.Fatalf("%s=%q (present=%v), want %q", key, got, ok, want)
		}
	}
}

func TestOpenTelemetry_FilterAndSessionOption(t *testing.T) {
	tp, started := newRecordingProvider()
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithIncludeSessionID(false),
		WithCallFilter(func(call *server.Call) bool { return call.Method != "skip" }),
	)

	mw(context.Background(), &server.Call{Method: "skip"}, func(context.Context) error { return nil })
	if len(*started) != 0 {
		t.Fatalf("filtered call started %d spans", len(*started))
	}

	mw(context.Background(), &server.Call{SessionID: "s1", Method: "keep"}, func(context.Context) error { return nil })
	if len(*started) != 1 {
		t.Fatalf("started %d spans, want 1", len(*started))
	}
	if _, ok := attrValue((*started)[0].attrs, "live.session_id"); ok {
		t.Fatal("session id recorded with WithIncludeSessionID(false)")
	}
}

func TestOpenTelemetry_PassesErrorThrough(t *testing.T) {
	tp, _ := newRecordingProvider()
	mw := OpenTelemetry(WithTracerProvider(tp),
		WithAttributeExtractor(func(context.Context, *server.Call) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("app.tenant", "t1")}
		}))
	boom := errors.New("boom")
	if err := mw(context.Background(), &server.Call{}, func(context.Context) error { return boom }); err != boom {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestSpanFromContext_NeverNil(t *testing.T) {
	if SpanFromContext(context.Background()) == nil {
		t.Fatal("SpanFromContext returned nil")
	}
}
