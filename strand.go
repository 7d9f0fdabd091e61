// Package strand builds stream dialers from a compact strategy descriptor
// and runs a local proxy that forwards every accepted connection through
// such a dialer.
//
// The descriptor is a "|"-separated chain of strategy tokens applied
// outermost-first, e.g. "split:3" or "tlsfrag:5|socks5:proxy.example:1080".
// See the internal/dialer package for the strategy catalog.
//
// StreamDialer and Proxy are lifecycle handles with explicit Release calls,
// so the package is usable across boundaries that cannot rely on garbage
// collection for socket cleanup. Misuse of a released handle is reported
// deterministically rather than ignored.
package strand

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/die-net/strand/internal/dialer"
	"github.com/die-net/strand/internal/proxy"
)

// DefaultDialTimeout bounds DNS resolution plus TCP connect for dialers
// built by NewStreamDialerFromConfig.
const DefaultDialTimeout = 10 * time.Second

// DefaultNegotiationTimeout bounds per-connection protocol negotiation, on
// both the proxy's client side and strategy handshakes.
const DefaultNegotiationTimeout = 10 * time.Second

// ErrDialerReleased is returned when a released StreamDialer is used.
var ErrDialerReleased = errors.New("stream dialer already released")

// StreamDialer establishes outbound connections, applying the transforms
// its descriptor configured. It is immutable after construction and safe
// for concurrent use by any number of simultaneous dials and proxies.
type StreamDialer struct {
	d        dialer.Dialer
	released atomic.Bool
}

// NewStreamDialerFromConfig builds a StreamDialer from a strategy
// descriptor. Syntax errors surface as *dialer.ParseError; unknown strategy
// names and bad parameters as *dialer.ConfigError. An empty descriptor
// yields a direct TCP dialer.
func NewStreamDialerFromConfig(descriptor string) (*StreamDialer, error) {
	cfg := dialer.Config{
		DialTimeout:        DefaultDialTimeout,
		NegotiationTimeout: DefaultNegotiationTimeout,
		KeepAlive:          net.KeepAliveConfig{Enable: true},
	}
	d, err := dialer.NewFromDescriptor(cfg, descriptor)
	if err != nil {
		return nil, err
	}
	return &StreamDialer{d: d}, nil
}

// DialContext implements dialer.Dialer.
func (d *StreamDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.released.Load() {
		return nil, ErrDialerReleased
	}
	return d.d.DialContext(ctx, network, address)
}

// Release drops the handle's reference to the dialer chain. It is
// idempotent and does not affect other dialers built from the same
// descriptor, nor proxies that started with this dialer before the release.
// Dials through a released handle fail with ErrDialerReleased.
func (d *StreamDialer) Release() {
	d.released.Store(true)
}

// Proxy is a handle to a running forwarding proxy.
type Proxy struct {
	srv      *proxy.Server
	stopped  atomic.Bool
	released atomic.Bool
}

// RunProxy binds a listener at address (e.g. "127.0.0.1:0") and starts
// forwarding accepted connections through d. It fails with a
// *proxy.BindError if the address is invalid or already in use.
func RunProxy(address string, d *StreamDialer) (*Proxy, error) {
	if d == nil || d.released.Load() {
		return nil, ErrDialerReleased
	}

	// The proxy shares the underlying chain, not the handle: releasing the
	// handle later must not break sessions already being served.
	srv, err := proxy.Run(address, proxy.Config{
		Dialer:             d.d,
		NegotiationTimeout: DefaultNegotiationTimeout,
		KeepAlive:          net.KeepAliveConfig{Enable: true},
	})
	if err != nil {
		return nil, err
	}
	return &Proxy{srv: srv}, nil
}

// Address returns the address the proxy is bound to, which reflects the
// kernel-assigned port when the requested port was 0.
func (p *Proxy) Address() string {
	return p.srv.Addr().String()
}

// Stop stops accepting connections and waits up to deadlineMillis for
// in-flight sessions to drain; sessions still running after the deadline
// are force-closed. It returns nil after a clean drain,
// proxy.ErrStopDeadline when the deadline forced closures (the proxy is
// still fully stopped), and proxy.ErrNotRunning on a second Stop.
func (p *Proxy) Stop(deadlineMillis int) error {
	err := p.srv.Stop(time.Duration(deadlineMillis) * time.Millisecond)
	if err == nil || errors.Is(err, proxy.ErrStopDeadline) {
		p.stopped.Store(true)
	}
	return err
}

// Release frees the proxy's resources. Calling it before Stop has
// completed, or a second time, is a contract violation reported via
// proxy.ErrNotStopped / proxy.ErrReleased.
func (p *Proxy) Release() error {
	if p.released.Load() {
		return proxy.ErrReleased
	}
	if !p.stopped.Load() {
		return proxy.ErrNotStopped
	}
	err := p.srv.Release()
	if err == nil {
		p.released.Store(true)
	}
	return err
}
