package engine

// DefaultReadChunkSize is the read buffer size used for unframed channels
// when Options.ReadChunkSize is zero.
const DefaultReadChunkSize = 32 * 1024

// Options configures socket-level behavior of a Channel. The zero value is
// usable: keep-alive off, Nagle enabled, OS-default buffer sizes, no
// framing.
type Options struct {
	// KeepAlive enables TCP keep-alive probes on the connection.
	KeepAlive bool

	// TCPNoDelay disables Nagle's algorithm when true.
	TCPNoDelay bool

	// SendBufferSize sets the OS send buffer size in bytes; 0 leaves the
	// OS default.
	SendBufferSize int

	// RecvBufferSize sets the OS receive buffer size in bytes; 0 leaves
	// the OS default.
	RecvBufferSize int

	// UseFraming prefixes every written payload with a 4-byte big-endian
	// length on the wire and reassembles exactly one such frame per Data
	// event on the read side. Without it, Data events carry whatever byte
	// runs the socket delivers, with no relation to the peer's write
	// boundaries.
	UseFraming bool

	// ReadChunkSize caps the size of a single unframed Data event; 0 means
	// DefaultReadChunkSize. Ignored when UseFraming is set.
	ReadChunkSize int
}
