package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/vango-live/pkg/server"
)

const (
	defaultTracerName = "vango-live"
	actionSpanName    = "live.action"
)

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "vango-live").
	TracerName string

	// TracerProvider supplies the tracer. Default: otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// IncludeSessionID adds the originating session id to spans.
	// Enabled by default.
	IncludeSessionID bool

	// Filter determines which calls to trace. Nil traces all of them.
	Filter func(call *server.Call) bool

	// AttributeExtractor adds custom attributes per call.
	AttributeExtractor func(ctx context.Context, call *server.Call) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludeSessionID enables/disables the session id attribute.
func WithIncludeSessionID(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeSessionID = include
	}
}

// WithCallFilter sets a filter function for calls.
func WithCallFilter(filter func(call *server.Call) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx context.Context, call *server.Call) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:       defaultTracerName,
		IncludeSessionID: true,
	}
}

// OpenTelemetry creates middleware that opens a span around every action.
// Handler errors and panics are recorded on the span.
func OpenTelemetry(opts ...OTelOption) server.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(ctx context.Context, call *server.Call, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(call) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("live.component_id", call.ComponentID),
			attribute.String("live.component_kind", call.Kind),
			attribute.String("live.method", call.Method),
			attribute.String("live.origin", string(call.Origin)),
		}
		if config.IncludeSessionID && call.SessionID != "" {
			attrs = append(attrs, attribute.String("live.session_id", call.SessionID))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(ctx, call)...)
		}

		ctx, span := tracer.Start(ctx, actionSpanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

// SpanFromContext returns the action span in a handler's context.
// It never returns nil; outside a traced action the span is a no-op.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
