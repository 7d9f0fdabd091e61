package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/die-net/strand/internal/dialer"
	"github.com/die-net/strand/internal/socks5"
)

type serverState int

const (
	stateRunning serverState = iota
	stateStopping
	stateStopped
	stateReleased
)

// Server is a running forwarding proxy. It owns its listener and the set of
// in-flight sessions; the dialer is shared with the caller and never closed
// by the server.
//
// Lifecycle: Run starts a server in the Running state. Stop transitions
// Running -> Stopping -> Stopped, draining sessions within a deadline.
// Release frees the stopped server's resources. All methods are safe for
// concurrent use.
type Server struct {
	cfg Config
	ln  net.Listener

	// baseCtx is canceled when sessions are force-closed, aborting any dial
	// still in flight.
	baseCtx context.Context
	cancel  context.CancelFunc

	wg sync.WaitGroup

	mu       sync.Mutex
	state    serverState
	sessions map[*session]struct{}
}

// Run binds a listener at address and starts accepting connections, each
// handled in its own goroutine so slow dials never block the accept loop.
// It fails with a *BindError if the address is invalid or in use.
func Run(address string, cfg Config) (*Server, error) {
	ln, err := ListenTCP("tcp", address, cfg.KeepAlive)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		ln:       ln,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[*session]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// ActiveSessions returns the number of accepted-but-not-terminated client
// sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if s.cfg.Verbose {
				log.Printf("proxy: accept: %v", err)
			}
			return
		}

		sess := &session{server: s, client: conn}
		if !s.track(sess) {
			// Lost the race with Stop.
			conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			if err := sess.run(s.baseCtx); err != nil && s.cfg.Verbose {
				log.Printf("proxy: session %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

// Stop stops accepting new connections immediately, waits up to timeout for
// in-flight sessions to drain, then force-closes whatever is left. It
// returns nil after a clean drain, ErrStopDeadline when sessions had to be
// force-closed, and ErrNotRunning if the server was already stopped. In all
// of the first two cases the server is fully Stopped on return.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = stateStopping
	s.mu.Unlock()

	_ = s.ln.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	forced := false
	select {
	case <-done:
	case <-time.After(timeout):
		forced = true
		s.closeSessions()
		<-done
	}

	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()

	if forced {
		return ErrStopDeadline
	}
	return nil
}

// closeSessions force-closes every in-flight session: both connections are
// closed and pending dials are aborted via context cancellation.
func (s *Server) closeSessions() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.close()
	}
}

// Release frees the stopped server's retained resources. Calling it before
// Stop has completed returns ErrNotStopped; calling it twice returns
// ErrReleased. Both indicate a caller bug and leave the server unchanged.
func (s *Server) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateReleased:
		return ErrReleased
	case stateStopped:
	default:
		return ErrNotStopped
	}

	s.state = stateReleased
	s.sessions = nil
	s.cfg.Dialer = nil
	s.cancel()
	return nil
}

// session is one accepted client connection bridged to one dialed upstream
// connection by a bidirectional relay.
type session struct {
	server *Server
	client net.Conn

	mu       sync.Mutex
	upstream net.Conn
	cancel   context.CancelFunc
}

func (c *session) run(baseCtx context.Context) error {
	defer c.client.Close()

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()
	c.setCancel(cancel)

	cfg := c.server.cfg

	// Destination signaling: SOCKS5 CONNECT, bounded by the negotiation
	// timeout.
	if cfg.NegotiationTimeout > 0 {
		_ = c.client.SetDeadline(time.Now().Add(cfg.NegotiationTimeout))
	}
	req, err := socks5.ServerHandshake(c.client)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	upstream, err := cfg.Dialer.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		writeDialFailureReply(c.client, req.Atyp(), err)
		return fmt.Errorf("dial %s: %w", req.Address(), err)
	}
	if !c.setUpstream(upstream) {
		// Force-closed while dialing.
		upstream.Close()
		return nil
	}
	defer upstream.Close()

	if err := socks5.WriteSuccessReply(c.client, upstream.LocalAddr()); err != nil {
		return err
	}
	if cfg.NegotiationTimeout > 0 {
		_ = c.client.SetDeadline(time.Time{})
	}

	if err := Relay(ctx, c.client, upstream); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// writeDialFailureReply maps a dial failure to the closest SOCKS5 reply
// code.
func writeDialFailureReply(conn net.Conn, atyp byte, err error) {
	var de *dialer.DialError
	if errors.As(err, &de) && de.Kind == dialer.KindConnectionRefused {
		socks5.WriteConnectionRefusedReply(conn, atyp)
		return
	}
	socks5.WriteHostUnreachableReply(conn, atyp)
}

func (c *session) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
}

func (c *session) setUpstream(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upstream == closedSentinel {
		return false
	}
	c.upstream = conn
	return true
}

// close force-terminates the session from outside: both sockets are closed
// and any in-flight dial is canceled, which makes run's copies and dials
// return promptly.
func (c *session) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	_ = c.client.Close()
	if c.upstream != nil && c.upstream != closedSentinel {
		_ = c.upstream.Close()
	}
	c.upstream = closedSentinel
}

// closedSentinel marks a session whose close ran before the dial finished.
var closedSentinel net.Conn = &net.TCPConn{}
