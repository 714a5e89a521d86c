// Package engine is the socket engine boundary for pullnet: a small,
// callback-driven TCP layer in the style of event-loop socket frameworks.
//
// The engine owns the push side of every connection. Each Channel runs a
// read goroutine that delivers a closed set of tagged events (Active, Data,
// Inactive, Error) to a single Handler function, in order. Delivery of Data
// events can be paused and resumed with SetAutoRead; while paused the engine
// issues no socket reads at all, so the OS receive buffer fills, the TCP
// window closes, and the remote peer is throttled by the network itself.
//
// Operations that the engine completes on its own time (write, close) return
// a Completion, a single-settlement signal that a consumer may wait on with
// a context. Abandoning the wait does not cancel the underlying operation;
// it keeps running in the background and its result is discarded.
//
// Handlers run on the engine's read goroutine and must never block on
// consumer logic. Anything that can stall belongs on the pull side, behind a
// queue.
package engine

// EventKind identifies one of the engine's channel callback variants.
type EventKind int

const (
	// EventActive fires once, before any other event, when the channel
	// becomes usable.
	EventActive EventKind = iota

	// EventData carries inbound bytes. The payload is owned by the engine
	// and is reclaimed as soon as the Handler returns; a Handler that wants
	// to keep the bytes must copy them.
	EventData

	// EventInactive fires once when the stream ends cleanly, either because
	// the remote peer closed or because the channel was closed locally. It
	// is the last event the channel will ever deliver.
	EventInactive

	// EventError fires once on a mid-stream failure (e.g. reset by peer).
	// Like EventInactive, it is terminal.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventActive:
		return "Active"
	case EventData:
		return "Data"
	case EventInactive:
		return "Inactive"
	case EventError:
		return "Error"
	}
	return "Unknown"
}

// Event is one channel callback. Data is valid only for EventData and only
// until the Handler returns. Err is set only for EventError.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Handler receives every event for one Channel, in delivery order, on the
// channel's read goroutine.
type Handler func(Event)
