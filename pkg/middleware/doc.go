// Package middleware provides observability for the live-update broker.
//
// # Prometheus Metrics
//
// Prometheus returns a *Metrics that is both a server.Middleware (timing and
// counting every action) and a server.Observer (sessions, components,
// messages, drops):
//
//	m := middleware.Prometheus(middleware.WithNamespace("myapp"))
//	cfg := server.DefaultBrokerConfig()
//	cfg.Middleware = append(cfg.Middleware, m.Middleware())
//	cfg.Observer = m
//
// Collected series:
//   - live_actions_total{kind,method,origin,status}
//   - live_action_duration_seconds{kind,origin}
//   - live_action_faults_total{kind,reason}
//   - live_messages_sent_total{type}
//   - live_protocol_errors_total{code}
//   - live_sessions_dropped_total
//   - live_active_sessions
//   - live_components
//
// # OpenTelemetry
//
// OpenTelemetry traces every action with a "live.action" span carrying the
// component id, kind, method, origin and session id. The span is in the
// context handed to the action handler, so downstream calls inherit it.
//
//	cfg.Middleware = append(cfg.Middleware, middleware.OpenTelemetry())
package middleware
