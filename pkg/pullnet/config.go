package pullnet

import (
	"fmt"

	"github.com/pullnet/pullnet/pkg/engine"
)

const (
	// DefaultAcceptQueueLimit is the accept queue capacity used when
	// ServerConfig.AcceptQueueLimit is zero.
	DefaultAcceptQueueLimit = 16

	// DefaultInboundQueueLimit is the per-connection inbound chunk limit
	// used when a config leaves InboundQueueLimit zero.
	DefaultInboundQueueLimit = 32

	// DefaultAcceptorCount is the number of acceptor goroutines used when
	// ServerConfig.AcceptorCount is zero.
	DefaultAcceptorCount = 1
)

// ServerConfig configures a Server. The zero value is usable; zero limits
// take the package defaults, negative limits are rejected.
//
// AcceptQueueLimit and InboundQueueLimit are deliberately separate settings:
// the first bounds how many accepted-but-unconsumed connections may exist,
// the second bounds how many inbound chunks a single connection may buffer
// before its socket reads are paused.
type ServerConfig struct {
	// KeepAlive enables TCP keep-alive on accepted connections.
	KeepAlive bool

	// TCPNoDelay disables Nagle's algorithm on accepted connections.
	TCPNoDelay bool

	// AcceptorCount is the number of goroutines servicing the listening
	// socket.
	AcceptorCount int

	// AcceptQueueLimit is the capacity of the accept queue. When it is
	// full the acceptors suspend, throttling admission of new connections
	// even though the OS has already accepted them.
	AcceptQueueLimit int

	// InboundQueueLimit is the per-connection inbound queue depth at which
	// socket reads are paused. Equal depth pauses; reads resume as soon as
	// the consumer drains below the limit.
	InboundQueueLimit int

	// UseFraming applies the 4-byte big-endian length framing codec to
	// every accepted connection.
	UseFraming bool

	// SendBufferSize / RecvBufferSize set OS socket buffer sizes in bytes;
	// 0 leaves the OS defaults.
	SendBufferSize int
	RecvBufferSize int

	// Group, when non-nil, is a shared goroutine group to run the server's
	// engine work on. When nil the server creates its own group and stops
	// it gracefully at shutdown.
	Group *engine.Group
}

func (c ServerConfig) normalized() (ServerConfig, error) {
	if c.AcceptQueueLimit < 0 {
		return c, fmt.Errorf("pullnet: AcceptQueueLimit cannot be negative, got %d", c.AcceptQueueLimit)
	}
	if c.InboundQueueLimit < 0 {
		return c, fmt.Errorf("pullnet: InboundQueueLimit cannot be negative, got %d", c.InboundQueueLimit)
	}
	if c.AcceptorCount < 0 {
		return c, fmt.Errorf("pullnet: AcceptorCount cannot be negative, got %d", c.AcceptorCount)
	}
	if c.AcceptQueueLimit == 0 {
		c.AcceptQueueLimit = DefaultAcceptQueueLimit
	}
	if c.InboundQueueLimit == 0 {
		c.InboundQueueLimit = DefaultInboundQueueLimit
	}
	if c.AcceptorCount == 0 {
		c.AcceptorCount = DefaultAcceptorCount
	}
	return c, nil
}

func (c ServerConfig) engineOptions() engine.Options {
	return engine.Options{
		KeepAlive:      c.KeepAlive,
		TCPNoDelay:     c.TCPNoDelay,
		SendBufferSize: c.SendBufferSize,
		RecvBufferSize: c.RecvBufferSize,
		UseFraming:     c.UseFraming,
	}
}

// ClientConfig configures a Client connection. The zero value is usable;
// a zero InboundQueueLimit takes the package default.
type ClientConfig struct {
	// KeepAlive enables TCP keep-alive on the connection.
	KeepAlive bool

	// TCPNoDelay disables Nagle's algorithm on the connection.
	TCPNoDelay bool

	// InboundQueueLimit is the inbound queue depth at which socket reads
	// are paused.
	InboundQueueLimit int

	// UseFraming applies the 4-byte big-endian length framing codec.
	UseFraming bool

	// SendBufferSize / RecvBufferSize set OS socket buffer sizes in bytes;
	// 0 leaves the OS defaults.
	SendBufferSize int
	RecvBufferSize int

	// Group, when non-nil, is a shared goroutine group to run the
	// connection's engine work on. When nil the connection owns its group
	// and stops it gracefully when the Exchange shuts down.
	Group *engine.Group
}

func (c ClientConfig) normalized() (ClientConfig, error) {
	if c.InboundQueueLimit < 0 {
		return c, fmt.Errorf("pullnet: InboundQueueLimit cannot be negative, got %d", c.InboundQueueLimit)
	}
	if c.InboundQueueLimit == 0 {
		c.InboundQueueLimit = DefaultInboundQueueLimit
	}
	return c, nil
}

func (c ClientConfig) engineOptions() engine.Options {
	return engine.Options{
		KeepAlive:      c.KeepAlive,
		TCPNoDelay:     c.TCPNoDelay,
		SendBufferSize: c.SendBufferSize,
		RecvBufferSize: c.RecvBufferSize,
		UseFraming:     c.UseFraming,
	}
}
