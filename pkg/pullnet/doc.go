// Package pullnet exposes TCP connections as bidirectional,
// backpressure-aware streams of byte payloads.
//
// The underlying socket engine (package engine) is push-based: it delivers
// connection events and inbound bytes through callbacks on its own read
// goroutines. pullnet turns that into a pull-based model: every connection
// is an Exchange, whose Read suspends the caller until the next inbound
// chunk is available and whose Write suspends until the engine confirms the
// bytes were written. A slow reader does not buffer without bound; once the
// connection's inbound queue reaches its configured limit, the engine's
// auto-read flag is cleared and the socket simply stops being read, so the
// TCP window closes and the peer is throttled by the network itself.
//
// A Server publishes (remote address, Exchange) pairs through a bounded
// accept queue; when the queue is full, newly accepted connections wait
// before being admitted. A Client dials one connection and returns its
// Exchange. Both release everything they own -- bound socket, queues,
// goroutine group -- exactly once on every exit path: normal completion,
// error, or cancellation from outside.
//
// Payloads are opaque byte sequences. Unless length framing is enabled in
// the config, chunk boundaries on the read side are whatever the socket
// delivers and carry no relation to the peer's write boundaries. Any
// higher-level protocol is the caller's responsibility.
package pullnet
