package pullnet

import (
	"context"
	"io"
	"sync"
)

// inboundQueue carries byte chunks from a connection's engine read goroutine
// to the pulling consumer. Storage is unbounded; admission is governed
// outside the queue by the flow regulator, which observes every depth change
// through the onDepth hook.
//
// The queue has single-producer/single-consumer-with-close semantics: the
// engine side pushes, closes, or fails it; the consumer side pops. A close
// or failure is terminal, but buffered chunks are always drained first --
// the terminal state is only reported once the queue is empty.
type inboundQueue struct {
	mu      sync.Mutex
	chunks  [][]byte
	updated chan struct{}
	closed  bool
	failErr error

	// onDepth is invoked with the new depth, under mu, after every push
	// and pop. Calls are therefore serialized, which is what makes the
	// regulator's level-triggered toggling race-free.
	onDepth func(depth int)
}

func newInboundQueue(onDepth func(int)) *inboundQueue {
	return &inboundQueue{
		updated: make(chan struct{}),
		onDepth: onDepth,
	}
}

// wake releases all current waiters. Must be called with mu held.
func (q *inboundQueue) wake() {
	close(q.updated)
	q.updated = make(chan struct{})
}

// push appends an owned chunk. It never blocks. Chunks arriving after the
// queue has been closed locally are discarded; the stream is already
// terminating and the peer's data has nowhere to go.
func (q *inboundQueue) push(p []byte) {
	q.mu.Lock()
	if q.closed || q.failErr != nil {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, p)
	if q.onDepth != nil {
		q.onDepth(len(q.chunks))
	}
	q.wake()
	q.mu.Unlock()
}

// pop returns the next chunk, blocking until one is available, the queue is
// terminally closed (io.EOF) or failed (the failure cause), or ctx is done.
// Buffered chunks are always delivered before any terminal condition.
func (q *inboundQueue) pop(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	for {
		if len(q.chunks) > 0 {
			p := q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			if q.onDepth != nil {
				q.onDepth(len(q.chunks))
			}
			q.mu.Unlock()
			return p, nil
		}
		if q.failErr != nil {
			err := q.failErr
			q.mu.Unlock()
			return nil, err
		}
		if q.closed {
			q.mu.Unlock()
			return nil, io.EOF
		}
		wait := q.updated
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		q.mu.Lock()
	}
}

// closeClean marks clean end-of-stream. Idempotent; loses to an earlier
// failure but never erases one.
func (q *inboundQueue) closeClean() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.wake()
	}
	q.mu.Unlock()
}

// fail marks the queue failed with cause. The first terminal state wins.
func (q *inboundQueue) fail(cause error) {
	q.mu.Lock()
	if !q.closed && q.failErr == nil {
		q.failErr = cause
		q.wake()
	}
	q.mu.Unlock()
}

func (q *inboundQueue) depth() int {
	q.mu.Lock()
	n := len(q.chunks)
	q.mu.Unlock()
	return n
}
