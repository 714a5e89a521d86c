package engine

import (
	"context"
	"sync"
)

// Completion is a single-settlement signal for an asynchronous engine
// operation. The engine settles it exactly once, with nil for success or an
// error for failure; any number of goroutines may observe the result.
//
// Waiting on a Completion is how pull-side code suspends on engine work
// without ever running on an engine goroutine. A wait abandoned through
// context cancellation does not cancel the underlying operation: the
// operation may still complete in the background, and its result is then
// discarded. Callers that own resources tied to the operation must still
// arrange for their release (typically by shutting down the channel).
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion returns an unsettled Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// SettledCompletion returns a Completion already settled with err.
func SettledCompletion(err error) *Completion {
	c := NewCompletion()
	c.Settle(err)
	return c
}

// Settle resolves the Completion. Only the first call has any effect.
func (c *Completion) Settle(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a chan that is closed once the Completion is settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err blocks until the Completion is settled, then returns its result.
func (c *Completion) Err() error {
	<-c.done
	return c.err
}

// Wait blocks until the Completion settles or ctx is done, whichever comes
// first. On cancellation the operation itself is not cancelled; its eventual
// result is discarded.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
