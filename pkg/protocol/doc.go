// Package protocol defines the JSON message protocol of the live-update channel.
//
// Every frame exchanged over the persistent channel is a single JSON object
// carrying a "type" discriminator. The set of types is closed: anything else
// is a parse error and is answered with an error message, never with a
// disconnect.
//
// # Client → Server
//
//	register      {sessionId, components: [id...]}
//	action        {componentId, method, event}
//	update_state  {componentId, state}
//	ping          {}
//
// # Server → Client
//
//	registered    {sessionId, components}
//	update        {componentId, html, state}
//	batch_update  {updates: [{componentId, html, state}...]}
//	reload        {}
//	eval          {code}
//	pong          {}
//	error         {message, errorCode, componentId}
//
// # Encoding
//
// Message is a flat envelope. Encode writes only the fields that belong to
// the message type so the wire shape is exactly the table above, with
// required fields always present (an empty state is sent as {}, not
// omitted). Decode validates required fields per type and returns a
// *ParseError for malformed input.
//
// Use DecodeClientMessage on the server and DecodeServerMessage on the
// client: each rejects types that only travel in the opposite direction.
package protocol
