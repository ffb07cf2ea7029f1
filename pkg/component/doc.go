// Package component holds the server side of addressable UI state.
//
// A Component is a mutable, JSON-safe state tree plus a pure render function,
// identified by a stable id. Components live in a Registry for as long as the
// application keeps them there; nothing is evicted automatically.
//
// Actions are plain functions bound by method name. Bindings resolves a
// method for a component in a fixed order:
//
//  1. actions registered for the component id
//  2. actions registered for the component kind
//  3. the built-in fallback table (set, toggle, increment, decrement, reset)
//
// and reports "not found" otherwise.
//
// # Concurrency
//
// Registry operations are map-level atomic but never serialize mutations of a
// single component. Callers that run actions take the component's execution
// lock with Exclusive; the state itself is additionally guarded so concurrent
// readers (renders for other requests, snapshots) always observe a
// consistent tree.
package component
