package dialer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// defaultHopLimit is assumed when the stack reports TTL 0 for the dialed
// socket.
const defaultHopLimit = 64

type disorderDialer struct {
	inner  Dialer
	prefix int64
}

// newDisorderDialer builds the "disorder" strategy: the connection's TTL is
// dropped to 1 before the first prefix bytes are written, so that fragment
// dies in the network and the kernel retransmits it after the rest of the
// data, delivering the stream to the server out of order. The TTL is
// restored before the remainder is sent.
//
// Parameters: one integer prefix length in [1, 65535].
func newDisorderDialer(_ Config, inner Dialer, params []string) (Dialer, error) {
	prefix, err := singleOffsetParam("disorder", params)
	if err != nil {
		return nil, err
	}
	return &disorderDialer{inner: inner, prefix: prefix}, nil
}

func (d *disorderDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	oldTTL, err := setHopLimit(conn, 1)
	if err != nil {
		conn.Close()
		return nil, classifyDial(network, address, fmt.Errorf("disorder: set ttl: %w", err))
	}

	return WrapWriter(conn, &disorderWriter{conn: conn, prefix: d.prefix, oldTTL: oldTTL}), nil
}

// disorderWriter writes the first prefix bytes with the lowered TTL still in
// effect, restores the TTL exactly once, then passes the rest through.
type disorderWriter struct {
	conn     net.Conn
	restore  sync.Once
	prefix   int64
	oldTTL   int
	writeErr error
}

var _ io.Writer = (*disorderWriter)(nil)

func (w *disorderWriter) Write(p []byte) (int, error) {
	var written int
	if w.prefix > 0 {
		end := min(w.prefix, int64(len(p)))
		n, err := w.conn.Write(p[:end])
		written += n
		w.prefix -= int64(n)
		if err != nil {
			return written, err
		}
		p = p[n:]
		if w.prefix > 0 {
			return written, nil
		}

		// The full prefix is on its way with the lowered TTL; everything
		// after it travels normally.
		w.restore.Do(func() {
			_, w.writeErr = setHopLimit(w.conn, w.oldTTL)
		})
	}
	if w.writeErr != nil {
		return written, fmt.Errorf("disorder: restore ttl: %w", w.writeErr)
	}
	if len(p) == 0 {
		return written, nil
	}

	n, err := w.conn.Write(p)
	written += n
	return written, err
}

// setHopLimit changes the socket TTL (IPv4) or hop limit (IPv6) and returns
// the previous value.
func setHopLimit(conn net.Conn, ttl int) (oldTTL int, err error) {
	addr, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		return 0, fmt.Errorf("parse remote addr: %w", err)
	}

	switch {
	case addr.Addr().Is4() || addr.Addr().Is4In6():
		c := ipv4.NewConn(conn)
		oldTTL, _ = c.TTL()
		err = c.SetTTL(ttl)
	case addr.Addr().Is6():
		c := ipv6.NewConn(conn)
		oldTTL, _ = c.HopLimit()
		err = c.SetHopLimit(ttl)
	default:
		return 0, fmt.Errorf("unsupported remote addr %v", addr.Addr())
	}
	if err != nil {
		return 0, err
	}

	if oldTTL == 0 {
		oldTTL = defaultHopLimit
	}
	return oldTTL, nil
}
