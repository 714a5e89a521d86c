package engine

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

var lastListenerNum int64

// Listener binds a listening socket and produces unstarted Channels for
// incoming connections. Channel options are applied to each accepted
// connection before it is returned.
type Listener struct {
	*asyncobj.Helper

	name  string
	nl    net.Listener
	opts  Options
	group *Group
}

// Listen binds address on network ("tcp", "tcp4", "tcp6") and returns a
// Listener. The bind failure, if any, is returned before any connection can
// ever be produced.
func Listen(lg logger.Logger, network, address string, opts Options, g *Group) (*Listener, error) {
	nl, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	n := atomic.AddInt64(&lastListenerNum, 1)
	name := fmt.Sprintf("<Listener#%d %v>", n, nl.Addr())
	l := &Listener{
		name:  name,
		nl:    nl,
		opts:  opts,
		group: g,
	}
	l.Helper = asyncobj.NewHelper(lg.ForkLogStr(name), l)
	l.SetIsActivated()
	return l, nil
}

func (l *Listener) String() string {
	return l.name
}

// Addr returns the bound listening address.
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

// Accept blocks for the next incoming connection and wraps it as an
// unstarted Channel. After shutdown begins, Accept quickly returns
// ErrChannelClosed.
func (l *Listener) Accept() (*Channel, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) || l.IsStartedShutdown() {
			return nil, ErrChannelClosed
		}
		return nil, err
	}
	ch, err := NewChannel(l.Logger, nc, l.opts, l.group)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return ch, nil
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// closes the bound socket, which releases any goroutine blocked in Accept.
func (l *Listener) HandleOnceShutdown(completionErr error) error {
	err := l.nl.Close()
	if completionErr == nil && err != nil && !errors.Is(err, net.ErrClosed) {
		completionErr = err
	}
	return completionErr
}
