package proxy

import (
	"errors"
	"fmt"
)

// BindError reports a failure to bind the listening socket; no listener
// exists when it is returned.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

var (
	// ErrStopDeadline is returned by Stop when the drain deadline passed and
	// in-flight sessions had to be force-closed. It reports a shutdown mode,
	// not a failure: the server is fully stopped when Stop returns it.
	ErrStopDeadline = errors.New("shutdown deadline exceeded, sessions force-closed")

	// ErrNotRunning is returned by Stop when the server is not in the
	// Running state.
	ErrNotRunning = errors.New("proxy server is not running")

	// ErrNotStopped is returned by Release before Stop has completed.
	ErrNotStopped = errors.New("proxy server has not been stopped")

	// ErrReleased is returned by operations on a released server.
	ErrReleased = errors.New("proxy server already released")
)
