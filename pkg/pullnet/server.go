package pullnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"

	"github.com/pullnet/pullnet/pkg/engine"
)

var lastServerNum int64

type acceptedConn struct {
	raddr net.Addr
	ex    *Exchange
}

// Server binds a listening address and publishes each accepted connection
// as a (remote address, Exchange) pair through a bounded accept queue.
// When the queue is full the acceptors suspend, throttling how many
// concurrently-unconsumed connections exist independently of each
// connection's own inbound backpressure.
type Server struct {
	*asyncobj.Helper

	name     string
	bindAddr string
	cfg      ServerConfig

	lis       *engine.Listener
	group     *engine.Group
	ownsGroup bool

	accepted   chan acceptedConn
	quit       chan struct{}
	acceptorWg sync.WaitGroup

	// pumps holds every connection admitted during the server's lifetime
	// so that server shutdown can tear all of them down. Guarded by Lock.
	pumps     []*connPump
	acceptErr error

	// Stats counts admitted and currently open connections.
	Stats ConnStats
}

// Listen binds addr and starts accepting connections. A bind failure
// (address in use, permission denied) is returned as a *BindError before
// any connection is ever produced; the partially-acquired server is fully
// released before Listen returns.
func Listen(lg logger.Logger, addr string, cfg ServerConfig) (*Server, error) {
	ncfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	group := ncfg.Group
	ownsGroup := group == nil
	if ownsGroup {
		group = engine.NewGroup()
	}

	n := atomic.AddInt64(&lastServerNum, 1)
	name := fmt.Sprintf("<Server#%d %s>", n, addr)
	s := &Server{
		name:      name,
		bindAddr:  addr,
		cfg:       ncfg,
		group:     group,
		ownsGroup: ownsGroup,
		accepted:  make(chan acceptedConn, ncfg.AcceptQueueLimit),
		quit:      make(chan struct{}),
	}
	s.Helper = asyncobj.NewHelper(lg.ForkLogStr(name), s)
	if err := s.DoOnceActivate(s.HandleOnceActivate, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) String() string {
	return s.name
}

// Addr returns the bound listening address. Useful after binding to ":0".
func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// HandleOnceActivate binds the listening socket and starts the acceptor
// goroutines. On error the server is shut down without ever producing a
// connection.
func (s *Server) HandleOnceActivate() error {
	lis, err := engine.Listen(s.Logger, "tcp", s.bindAddr, s.cfg.engineOptions(), s.group)
	if err != nil {
		return &BindError{Addr: s.bindAddr, Cause: err}
	}
	s.lis = lis
	s.DLogf("listening on %v", lis.Addr())
	for i := 0; i < s.cfg.AcceptorCount; i++ {
		s.acceptorWg.Add(1)
		s.group.Go(func() {
			defer s.acceptorWg.Done()
			s.acceptLoop()
		})
	}
	return nil
}

// acceptLoop services the listening socket: each accepted connection is
// wrapped in a pump and enqueued once active. The enqueue blocks while the
// accept queue is full; that suspension is the admission backpressure.
// Temporary accept errors are retried with backoff, persistent ones shut
// the server down.
func (s *Server) acceptLoop() {
	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: 1 * time.Second}
	for {
		ch, err := s.lis.Accept()
		if err != nil {
			if err == engine.ErrChannelClosed || s.IsStartedShutdown() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				d := b.Duration()
				s.ILogf("temporary accept failure, retrying in %v: %s", d, err)
				select {
				case <-time.After(d):
					continue
				case <-s.quit:
					return
				}
			}
			s.StartShutdown(err)
			return
		}
		b.Reset()

		pump := newConnPump(s.Logger, ch, s.cfg.InboundQueueLimit)
		pump.group = s.group
		pump.onClosed = s.Stats.Close
		s.Lock.Lock()
		s.pumps = append(s.pumps, pump)
		s.Lock.Unlock()
		s.Stats.New()

		ch.Start(pump.handleEvent)

		select {
		case s.accepted <- acceptedConn{raddr: ch.RemoteAddr(), ex: &Exchange{p: pump}}:
			s.DLogf("admitted %v %s", ch.RemoteAddr(), s.Stats.String())
		case <-s.quit:
			pump.StartShutdown(ErrServerClosed)
			return
		}
	}
}

// Accept returns the next accepted connection, suspending the caller until
// one is available, the server has closed (ErrServerClosed, or the error
// that shut it down), or ctx is done. Connections are delivered in
// acceptance order; each is delivered exactly once.
func (s *Server) Accept(ctx context.Context) (net.Addr, *Exchange, error) {
	select {
	case ac, ok := <-s.accepted:
		if !ok {
			s.Lock.Lock()
			err := s.acceptErr
			s.Lock.Unlock()
			if err == nil {
				err = ErrServerClosed
			}
			return nil, nil, err
		}
		return ac.raddr, ac.ex, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// HandleOnceShutdown will be called exactly once, in its own goroutine:
// close the bound socket, stop the acceptors, end the accept sequence, tear
// down every admitted connection, and stop the owned goroutine group. It
// tolerates a partially-failed activation (nil listener).
func (s *Server) HandleOnceShutdown(completionErr error) error {
	close(s.quit)
	if s.lis != nil {
		err := s.lis.Close()
		if completionErr == nil {
			completionErr = err
		}
	}
	s.acceptorWg.Wait()

	s.Lock.Lock()
	s.acceptErr = completionErr
	pumps := append([]*connPump(nil), s.pumps...)
	s.Lock.Unlock()

	// discard connections that were admitted but never consumed; their pumps
	// are torn down below, and post-shutdown Accept reports ErrServerClosed
	// rather than handing out dead exchanges
drain:
	for {
		select {
		case <-s.accepted:
		default:
			break drain
		}
	}
	close(s.accepted)

	for _, p := range pumps {
		p.StartShutdown(ErrServerClosed)
	}
	for _, p := range pumps {
		p.WaitShutdown()
	}
	if s.ownsGroup {
		s.group.ShutdownGracefully()
	}
	s.DLogf("closed %s", s.Stats.String())
	return completionErr
}
