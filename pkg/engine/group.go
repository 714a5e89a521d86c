package engine

import "sync"

// Group is a set of goroutines owned by one Server or Client instance: the
// read goroutine of every Channel, write settlement goroutines, and
// acceptors. It exists so that owners can stop gracefully -- waiting for all
// engine work to drain -- rather than abandoning goroutines at shutdown.
//
// A Group is not a singleton; each Server/Client creates and releases its
// own unless the caller passes a shared one in through its config.
type Group struct {
	wg sync.WaitGroup
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{}
}

// Go runs fn on a new goroutine tracked by the Group.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// ShutdownGracefully blocks until every goroutine started through Go has
// exited. It does not itself stop anything; callers must first close the
// resources (listeners, channels) those goroutines are blocked on.
func (g *Group) ShutdownGracefully() {
	g.wg.Wait()
}
