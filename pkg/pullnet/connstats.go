package pullnet

import (
	"fmt"
	"sync/atomic"
)

// ConnStats keeps track of both currently open and total connection counts
// for a Server.
type ConnStats struct {
	count int32
	open  int32
}

// New adds one to the total connection count.
func (c *ConnStats) New() int32 {
	atomic.AddInt32(&c.open, 1)
	return atomic.AddInt32(&c.count, 1)
}

// Close subtracts one from the current open connection count.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

// Open returns the current open connection count.
func (c *ConnStats) Open() int32 {
	return atomic.LoadInt32(&c.open)
}

// Total returns the total number of connections ever admitted.
func (c *ConnStats) Total() int32 {
	return atomic.LoadInt32(&c.count)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count))
}
