// Package client is the client half of the live-update channel.
//
// Manager owns one persistent connection to the server. It registers the
// session on every connect, queues outbound messages while offline and
// flushes them in order once connected, pings on an interval, and reconnects
// with exponential backoff (1s, doubling, capped at 30s, reset on success).
//
// Inbound messages are handed to callbacks: updates go to a binder (see
// package dom), reload and eval to the host page. eval is only honored for
// scripts in the client-side allowlist.
package client
