package pullnet

// flowRegulator keeps one connection's inbound queue from growing without
// bound by toggling the engine's auto-read flag against a fixed depth limit.
//
// It is level-triggered: every depth observation re-evaluates the condition,
// whichever direction the depth moved, so it behaves correctly across
// multiple toggles within a single observation window. depth >= limit pauses
// reads (equality pauses, favoring safety over throughput); depth < limit
// resumes them. Pausing is the sole backpressure path for inbound data --
// the unserviced socket fills the OS receive buffer, the TCP window closes,
// and the peer's writes slow down at the network level.
type flowRegulator struct {
	limit   int
	setAuto func(enabled bool)
	paused  bool
}

func newFlowRegulator(limit int, setAuto func(bool)) *flowRegulator {
	return &flowRegulator{
		limit:   limit,
		setAuto: setAuto,
	}
}

// observe reacts to a new queue depth. Callers must serialize observations;
// the inbound queue does so by invoking observe under its own lock.
func (r *flowRegulator) observe(depth int) {
	if depth >= r.limit {
		if !r.paused {
			r.paused = true
			r.setAuto(false)
		}
	} else if r.paused {
		r.paused = false
		r.setAuto(true)
	}
}
