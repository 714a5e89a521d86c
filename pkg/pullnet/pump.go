package pullnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sizestr"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"

	"github.com/pullnet/pullnet/pkg/engine"
)

// Connection lifecycle states. Transitions only move forward; Closed is
// terminal.
const (
	stateInitializing int32 = iota
	stateActive
	stateClosing
	stateClosed
)

var lastPumpNum int64

// connPump owns one connection's inbound queue and auto-read state, and
// translates the engine's callback events into queue operations. It is the
// engine-facing half of an Exchange: reads drain the queue, writes go
// straight to the engine one at a time, and shutdown releases everything
// exactly once.
type connPump struct {
	*asyncobj.Helper

	name string
	ch   *engine.Channel
	q    *inboundQueue
	reg  *flowRegulator

	state int32

	// writeMu is the write-order gate: a write is not submitted to the
	// engine until the previous write's completion has been observed, so
	// payloads can never be reordered at the socket.
	writeMu sync.Mutex

	nbRead    int64
	nbWritten int64

	// group is stopped gracefully at shutdown when ownsGroup is set
	// (client connections own their group; server connections share the
	// server's).
	group     *engine.Group
	ownsGroup bool

	// onClosed, when set, runs once at the end of shutdown (server
	// connection accounting).
	onClosed func()
}

func newConnPump(lg logger.Logger, ch *engine.Channel, queueLimit int) *connPump {
	n := atomic.AddInt64(&lastPumpNum, 1)
	name := fmt.Sprintf("<Pump#%d %v>", n, ch.RemoteAddr())
	p := &connPump{
		name:  name,
		ch:    ch,
		state: stateInitializing,
	}
	p.reg = newFlowRegulator(queueLimit, ch.SetAutoRead)
	p.q = newInboundQueue(p.reg.observe)
	p.Helper = asyncobj.NewHelper(lg.ForkLogStr(name), p)
	p.SetIsActivated()
	return p
}

func (p *connPump) String() string {
	return p.name
}

// handleEvent is the engine callback state machine for this connection. It
// runs on the engine's read goroutine and never blocks on consumer logic:
// queue pushes are non-blocking, and terminal events only mark the queue.
func (p *connPump) handleEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventActive:
		atomic.CompareAndSwapInt32(&p.state, stateInitializing, stateActive)

	case engine.EventData:
		// The engine reclaims ev.Data as soon as this handler returns;
		// take an owned copy before queueing.
		owned := make([]byte, len(ev.Data))
		copy(owned, ev.Data)
		atomic.AddInt64(&p.nbRead, int64(len(owned)))
		p.q.push(owned)

	case engine.EventInactive:
		atomic.CompareAndSwapInt32(&p.state, stateActive, stateClosing)
		p.q.closeClean()
		p.StartShutdown(nil)

	case engine.EventError:
		atomic.CompareAndSwapInt32(&p.state, stateActive, stateClosing)
		cause := &IOError{Op: "read", Cause: ev.Err}
		p.q.fail(cause)
		p.StartShutdown(cause)
	}
}

// read produces the next inbound chunk, suspending the caller until one is
// queued, the stream ends (io.EOF), the stream failed (*IOError), or ctx is
// done. Buffered chunks are drained before any terminal condition.
func (p *connPump) read(ctx context.Context) ([]byte, error) {
	return p.q.pop(ctx)
}

// write submits b to the engine and waits for its completion. Writes are
// strictly ordered: the next one is not submitted until this completion has
// settled or been abandoned. On ctx cancellation the engine write keeps
// running in the background and its result is discarded.
func (p *connPump) write(ctx context.Context, b []byte) error {
	if p.IsStartedShutdown() || atomic.LoadInt32(&p.state) >= stateClosing {
		return ErrExchangeClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	err := p.ch.Write(b).Wait(ctx)
	if err != nil {
		if err == engine.ErrChannelClosed {
			return ErrExchangeClosed
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &IOError{Op: "write", Cause: err}
	}
	atomic.AddInt64(&p.nbWritten, int64(len(b)))
	return nil
}

func (p *connPump) numBytesRead() int64 {
	return atomic.LoadInt64(&p.nbRead)
}

func (p *connPump) numBytesWritten() int64 {
	return atomic.LoadInt64(&p.nbWritten)
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// closes the engine channel, closes the inbound queue so any suspended
// reader is released with end-of-stream, and stops the owned goroutine
// group.
func (p *connPump) HandleOnceShutdown(completionErr error) error {
	atomic.StoreInt32(&p.state, stateClosing)

	err := p.ch.Close().Err()
	if completionErr == nil {
		completionErr = err
	}
	p.q.closeClean()

	if p.ownsGroup {
		p.group.ShutdownGracefully()
	}
	atomic.StoreInt32(&p.state, stateClosed)

	p.DLogf("closed (sent %s received %s)",
		sizestr.ToString(atomic.LoadInt64(&p.nbWritten)),
		sizestr.ToString(atomic.LoadInt64(&p.nbRead)))

	if p.onClosed != nil {
		p.onClosed()
	}
	return completionErr
}
