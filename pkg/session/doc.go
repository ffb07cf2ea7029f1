// Package session tracks connected clients and the components they watch.
//
// A Session is keyed by a client-supplied id. Registering again with an id
// that is already present updates that record in place; there is never more
// than one record per id. Interest (the set of component ids a session wants
// pushes for) lives on the session only, so dropping a session is enough to
// stop every push to it.
package session
