package pullnet

import (
	"errors"
	"fmt"
)

// ErrServerClosed is the terminal error of a Server's accept sequence after
// a clean shutdown, and the advisory error delivered to connections the
// server tears down.
var ErrServerClosed = errors.New("pullnet: server closed")

// ErrExchangeClosed is returned from operations on an Exchange whose
// shutdown has already started locally. A read suspended when shutdown
// begins resolves with io.EOF instead; in both cases the race between
// shutdown and a pending operation resolves cleanly, never as a hang or a
// swallowed error.
var ErrExchangeClosed = errors.New("pullnet: exchange closed")

// BindError reports that a Server could not bind its listening address
// (address in use, permission denied). It is surfaced before any connection
// is ever produced; there is no internal retry.
type BindError struct {
	Addr  string
	Cause error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("pullnet: bind %s: %s", e.Addr, e.Cause)
}

func (e *BindError) Unwrap() error {
	return e.Cause
}

// ConnectError reports a failed connection attempt (refused, timed out,
// unreachable, resolution failure). It is fatal for that attempt only;
// retrying is the caller's responsibility.
type ConnectError struct {
	Addr  string
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pullnet: connect %s: %s", e.Addr, e.Cause)
}

func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// IOError reports a mid-stream read or write failure on one connection. It
// terminates that connection's Exchange and never affects sibling
// connections or the Server as a whole.
type IOError struct {
	Op    string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pullnet: %s: %s", e.Op, e.Cause)
}

func (e *IOError) Unwrap() error {
	return e.Cause
}
