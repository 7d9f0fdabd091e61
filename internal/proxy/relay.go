package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/strand/internal/dialer"
)

// Relay copies bytes between left and right in both directions until both
// directions have ended.
//
// When one direction sees EOF or an error, the destination's write side is
// half-closed so the peer observes end-of-stream, while the opposite
// direction keeps draining until it ends naturally. Only once both
// directions are done are the connections fully closed. Canceling ctx
// force-closes both connections to unblock the copies.
//
// The first I/O error is returned; a clean EOF shutdown returns nil.
func Relay(ctx context.Context, left, right net.Conn) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	done := make(chan struct{})
	defer close(done)

	g.Go(func() error { return pump(left, right) })
	g.Go(func() error { return pump(right, left) })

	// Unblock both copies if the caller gives up, or if one direction hit a
	// real error; a clean EOF does not trip gctx, so the other direction
	// keeps draining after a half-close.
	go func() {
		select {
		case <-ctx.Done():
			closeBoth()
		case <-gctx.Done():
			closeBoth()
		case <-done:
		}
	}()

	err := g.Wait()
	if err != nil && (errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)) {
		// Expected when the other side finished first or shutdown closed us.
		err = nil
	}
	return err
}

// pump copies src to dst until EOF or error, then shuts down dst's write
// side so the peer sees end-of-stream while its own reads continue.
func pump(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)

	if wc, ok := dst.(dialer.WriteHalfCloser); ok {
		_ = wc.CloseWrite()
	} else {
		// No half-close support; a full close is the only way to propagate
		// EOF.
		_ = dst.Close()
	}

	return err
}
