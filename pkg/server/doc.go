// Package server is the server half of the live-update channel.
//
// A Broker owns the component registry, the session registry and the action
// bindings. It dispatches decoded client messages, runs action handlers under
// the target component's execution lock, and pushes the re-rendered markup to
// every session that registered interest in that component.
//
// Two transports feed the same dispatch path:
//
//   - a WebSocket endpoint (default /components/ws) carrying the JSON
//     messages defined in package protocol
//   - an HTTP fallback (default /components/action) for clients that cannot
//     hold a socket open; it runs the action and answers with the new markup
//     in the response body, without fan-out
//
// Server mounts both on a chi router alongside /metrics and /healthz.
//
// Basic use:
//
//	b := server.NewBroker(server.DefaultBrokerConfig())
//	b.RegisterKind(counterKind)
//	b.Mount("counter", "counter-1")
//
//	srv, err := server.New(b, server.DefaultServerConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(srv.Run())
package server
