package engine

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lithdew/bytesutil"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
	"github.com/valyala/bytebufferpool"
)

// frameHeaderLen is the wire size of the big-endian length prefix used when
// framing is enabled.
const frameHeaderLen = 4

// MaxFrameSize is the largest payload a single framed write may carry: the
// largest value representable in the 4-byte length prefix.
const MaxFrameSize uint64 = 1<<32 - 1

// ErrChannelClosed is returned from operations submitted to a channel whose
// shutdown has already started.
var ErrChannelClosed = errors.New("engine: channel closed")

// ErrFrameTooLarge is returned from a framed write whose payload exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("engine: frame exceeds 4-byte length prefix")

var lastChannelNum int64

// Channel wraps one net.Conn as an engine channel: a read goroutine that
// pushes tagged events at a Handler, an auto-read flag gating that goroutine,
// and Completion-based write and close operations. The Channel owns the
// net.Conn and is responsible for closing it.
type Channel struct {
	*asyncobj.Helper

	name  string
	conn  net.Conn
	opts  Options
	group *Group

	handler Handler

	// autoMu guards the auto-read gate. While autoRead is false the read
	// loop parks with no socket read pending, which is what lets TCP flow
	// control push back on the peer.
	autoMu     sync.Mutex
	autoCond   *sync.Cond
	autoRead   bool
	readClosed bool

	// writeTail is the completion of the most recently submitted write.
	// Each write waits for its predecessor before touching the socket, so
	// writes reach the wire in submission order even when a submitter
	// abandons its wait.
	writeMu   sync.Mutex
	writeTail *Completion
}

// NewChannel wraps conn as an unstarted Channel, applying the socket options
// in opts when conn is a TCP connection. On success the Channel owns conn.
// On error the caller still owns conn and should close it.
func NewChannel(lg logger.Logger, conn net.Conn, opts Options, g *Group) (*Channel, error) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetKeepAlive(opts.KeepAlive); err != nil {
			return nil, fmt.Errorf("engine: set keepalive: %w", err)
		}
		if err := tc.SetNoDelay(opts.TCPNoDelay); err != nil {
			return nil, fmt.Errorf("engine: set nodelay: %w", err)
		}
		if opts.SendBufferSize > 0 {
			if err := tc.SetWriteBuffer(opts.SendBufferSize); err != nil {
				return nil, fmt.Errorf("engine: set send buffer: %w", err)
			}
		}
		if opts.RecvBufferSize > 0 {
			if err := tc.SetReadBuffer(opts.RecvBufferSize); err != nil {
				return nil, fmt.Errorf("engine: set recv buffer: %w", err)
			}
		}
	}

	n := atomic.AddInt64(&lastChannelNum, 1)
	name := fmt.Sprintf("<Channel#%d %v>", n, conn.RemoteAddr())
	ch := &Channel{
		name:     name,
		conn:     conn,
		opts:     opts,
		group:    g,
		autoRead: true,
	}
	ch.autoCond = sync.NewCond(&ch.autoMu)
	ch.Helper = asyncobj.NewHelper(lg.ForkLogStr(name), ch)
	return ch, nil
}

func (ch *Channel) String() string {
	return ch.name
}

// RemoteAddr returns the remote address of the underlying connection.
func (ch *Channel) RemoteAddr() net.Addr {
	return ch.conn.RemoteAddr()
}

// LocalAddr returns the local address of the underlying connection.
func (ch *Channel) LocalAddr() net.Addr {
	return ch.conn.LocalAddr()
}

// Start attaches h and begins event delivery. The Active event is dispatched
// synchronously before Start returns; all later events arrive on the
// channel's read goroutine. Start must be called exactly once.
func (ch *Channel) Start(h Handler) {
	ch.handler = h
	ch.SetIsActivated()
	h(Event{Kind: EventActive})
	ch.group.Go(ch.readLoop)
}

// SetAutoRead pauses (false) or resumes (true) delivery of Data events. A
// read already blocked in the OS when the flag is cleared may still deliver
// one final chunk; no data is ever dropped.
func (ch *Channel) SetAutoRead(enabled bool) {
	ch.autoMu.Lock()
	ch.autoRead = enabled
	if enabled {
		ch.autoCond.Broadcast()
	}
	ch.autoMu.Unlock()
}

// waitAutoRead parks until auto-read is enabled or the channel is shutting
// down. Returns false when the read loop should exit.
func (ch *Channel) waitAutoRead() bool {
	ch.autoMu.Lock()
	for !ch.autoRead && !ch.readClosed {
		ch.autoCond.Wait()
	}
	ok := !ch.readClosed
	ch.autoMu.Unlock()
	return ok
}

func (ch *Channel) readLoop() {
	var rbuf []byte
	if !ch.opts.UseFraming {
		n := ch.opts.ReadChunkSize
		if n <= 0 {
			n = DefaultReadChunkSize
		}
		rbuf = make([]byte, n)
	}
	var hdr [frameHeaderLen]byte

	var cause error
	for {
		if !ch.waitAutoRead() {
			break
		}
		if ch.opts.UseFraming {
			if _, err := io.ReadFull(ch.conn, hdr[:]); err != nil {
				cause = err
				break
			}
			size := int(bytesutil.Uint32BE(hdr[:]))
			bb := bytebufferpool.Get()
			if cap(bb.B) >= size {
				bb.B = bb.B[:size]
			} else {
				bb.B = make([]byte, size)
			}
			if _, err := io.ReadFull(ch.conn, bb.B); err != nil {
				bytebufferpool.Put(bb)
				if err == io.EOF {
					// stream ended inside a frame
					err = io.ErrUnexpectedEOF
				}
				cause = err
				break
			}
			ch.handler(Event{Kind: EventData, Data: bb.B})
			bytebufferpool.Put(bb)
		} else {
			n, err := ch.conn.Read(rbuf)
			if n > 0 {
				ch.handler(Event{Kind: EventData, Data: rbuf[:n]})
			}
			if err != nil {
				cause = err
				break
			}
		}
	}

	if cause == nil || cause == io.EOF || errors.Is(cause, net.ErrClosed) || ch.IsStartedShutdown() {
		ch.DLogf("read loop done: clean end of stream")
		ch.handler(Event{Kind: EventInactive})
	} else {
		ch.DLogf("read loop done: %s", cause)
		ch.handler(Event{Kind: EventError, Err: cause})
	}
	ch.StartShutdown(nil)
}

// Write submits p to the socket and returns a Completion that settles when
// the write finishes or fails. Writes reach the wire in submission order.
// p must remain valid and unmodified until the Completion settles, even if
// the submitter abandons its wait.
func (ch *Channel) Write(p []byte) *Completion {
	if ch.IsStartedShutdown() {
		return SettledCompletion(ErrChannelClosed)
	}
	if ch.opts.UseFraming && uint64(len(p)) > MaxFrameSize {
		return SettledCompletion(ErrFrameTooLarge)
	}

	comp := NewCompletion()
	ch.writeMu.Lock()
	prev := ch.writeTail
	ch.writeTail = comp
	ch.writeMu.Unlock()

	ch.group.Go(func() {
		if prev != nil {
			<-prev.Done()
		}
		var err error
		if ch.opts.UseFraming {
			bb := bytebufferpool.Get()
			bb.B = bytesutil.AppendUint32BE(bb.B[:0], uint32(len(p)))
			bb.B = append(bb.B, p...)
			_, err = ch.conn.Write(bb.B)
			bytebufferpool.Put(bb)
		} else {
			_, err = ch.conn.Write(p)
		}
		if err != nil && errors.Is(err, net.ErrClosed) {
			err = ErrChannelClosed
		}
		comp.Settle(err)
	})
	return comp
}

// Close starts channel shutdown and returns a Completion that settles once
// the underlying connection is closed. Close is idempotent.
func (ch *Channel) Close() *Completion {
	comp := NewCompletion()
	ch.StartShutdown(nil)
	ch.group.Go(func() {
		comp.Settle(ch.WaitShutdown())
	})
	return comp
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// releases a parked read loop, then closes the connection, which unblocks
// any in-flight socket read or write.
func (ch *Channel) HandleOnceShutdown(completionErr error) error {
	ch.autoMu.Lock()
	ch.readClosed = true
	ch.autoCond.Broadcast()
	ch.autoMu.Unlock()

	err := ch.conn.Close()
	if completionErr == nil && err != nil && !errors.Is(err, net.ErrClosed) {
		completionErr = err
	}
	return completionErr
}
