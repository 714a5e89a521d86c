package pullnet

import (
	"context"
	"net"
)

// Exchange is the public handle for one live connection: a lazy, finite,
// non-restartable sequence of inbound byte chunks paired with a write sink
// that accepts outbound chunks one at a time. The caller owns the Exchange
// once it is yielded by a Server or Client and must eventually close it.
type Exchange struct {
	p *connPump
}

func (x *Exchange) String() string {
	return x.p.String()
}

// RemoteAddr returns the remote address of the connection.
func (x *Exchange) RemoteAddr() net.Addr {
	return x.p.ch.RemoteAddr()
}

// Read produces the next inbound chunk, suspending the caller until one is
// available. It returns io.EOF after a clean remote or local close (with
// any buffered chunks drained first), an *IOError after a mid-stream
// failure, or ctx's error if ctx is done first. Chunk boundaries match the
// peer's write boundaries only when framing is enabled.
func (x *Exchange) Read(ctx context.Context) ([]byte, error) {
	return x.p.read(ctx)
}

// Write submits p and suspends the caller until the engine confirms the
// write or fails it. Writes are never reordered: each completes before the
// next is started. A wait abandoned through ctx does not cancel the
// underlying write; p must remain valid until it completes.
func (x *Exchange) Write(ctx context.Context, p []byte) error {
	return x.p.write(ctx, p)
}

// NumBytesRead returns the total payload bytes delivered to this Exchange
// so far.
func (x *Exchange) NumBytesRead() int64 {
	return x.p.numBytesRead()
}

// NumBytesWritten returns the total payload bytes successfully written so
// far.
func (x *Exchange) NumBytesWritten() int64 {
	return x.p.numBytesWritten()
}

// StartShutdown schedules asynchronous shutdown of the Exchange with an
// advisory completion error. It has no effect after the first call.
func (x *Exchange) StartShutdown(completionErr error) {
	x.p.StartShutdown(completionErr)
}

// WaitShutdown blocks until the Exchange is completely shut down and
// returns the final completion status.
func (x *Exchange) WaitShutdown() error {
	return x.p.WaitShutdown()
}

// Close shuts the Exchange down -- engine channel closed, inbound queue
// closed so a suspended reader is released with end-of-stream, owned
// resources stopped -- and waits for that to finish. Close is idempotent
// and runs the release path exactly once no matter how many times or from
// where it is triggered.
func (x *Exchange) Close() error {
	return x.p.Close()
}
