// Package hub runs the real-time side of the messenger: one websocket
// session per connection, presence-aware routing, and the session lifecycle.
//
// # Sessions
//
// A Client is one accepted connection with a read pump and a write pump.
// It moves through three states:
//
//	Unauthenticated -> Authenticated -> Closed
//
// A login event authenticates an identity onto the connection and registers
// it with the presence registry. Any other event arriving before login is
// ignored. When the transport closes, the session disconnects from the
// registry and, if its handle was the registered one, the offline status is
// broadcast.
//
// # Routing
//
// The Router delivers events to online identities. Each session carries a
// bounded outbound queue; a slow or stalled peer causes drops for that peer
// only and never blocks the sender or other recipients.
//
// # Wire format
//
// Every frame is a single JSON object, decoded and encoded by the protocol
// package.
package hub
