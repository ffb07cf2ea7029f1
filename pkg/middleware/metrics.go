package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/vango-live/pkg/protocol"
	"github.com/vango-dev/vango-live/pkg/server"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "live").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for action duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "live",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the broker's Prometheus collectors.
type Metrics struct {
	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	actionFaults    *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	protocolErrors  *prometheus.CounterVec
	sessionsDropped prometheus.Counter
	activeSessions  prometheus.Gauge
	components      prometheus.Gauge
}

var _ server.Observer = (*Metrics)(nil)

// Prometheus creates and registers the collectors. Registering twice on the
// same registry panics, so tests should pass their own with WithRegistry.
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "actions_total",
			Help:        "Total number of component actions dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "method", "origin", "status"}),

		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "action_duration_seconds",
			Help:        "Action handler duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind", "origin"}),

		actionFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "action_faults_total",
			Help:        "Total number of action handlers that failed or panicked",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "reason"}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total messages written to sessions by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "protocol_errors_total",
			Help:        "Total inbound messages answered with an error, by code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		sessionsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_dropped_total",
			Help:        "Total sessions removed after a failed write",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of registered sessions",
			ConstLabels: config.ConstLabels,
		}),

		components: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "components",
			Help:        "Number of mounted components",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Middleware times and counts every action.
func (m *Metrics) Middleware() server.Middleware {
	return func(ctx context.Context, call *server.Call, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		m.actionDuration.WithLabelValues(call.Kind, string(call.Origin)).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.actionFaults.WithLabelValues(call.Kind, faultReason(err)).Inc()
		}
		m.actionsTotal.WithLabelValues(call.Kind, call.Method, string(call.Origin), status).Inc()
		return err
	}
}

// faultReason keeps the label set small.
func faultReason(err error) string {
	var he *server.HandlerError
	switch {
	case errors.As(err, &he) && he.Panic != nil:
		return "panic"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.As(err, &he):
		return "error"
	default:
		return "internal"
	}
}

// SessionsChanged implements server.Observer.
func (m *Metrics) SessionsChanged(n int) {
	m.activeSessions.Set(float64(n))
}

// ComponentsChanged implements server.Observer.
func (m *Metrics) ComponentsChanged(n int) {
	m.components.Set(float64(n))
}

// MessageSent implements server.Observer.
func (m *Metrics) MessageSent(t protocol.MessageType) {
	m.messagesSent.WithLabelValues(string(t)).Inc()
}

// SessionDropped implements server.Observer.
func (m *Metrics) SessionDropped() {
	m.sessionsDropped.Inc()
}

// ProtocolError implements server.Observer.
func (m *Metrics) ProtocolError(code protocol.ErrorCode) {
	m.protocolErrors.WithLabelValues(code.String()).Inc()
}
