package dialer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsDialer struct {
	cfg   Config
	inner Dialer
	path  string
	host  string
}

// newWSDialer builds the "ws" strategy: the stream is carried in binary
// WebSocket messages to ws://<destination>/<path>, with the underlying TCP
// connection dialed through the inner chain. Useful against middleboxes
// that pass HTTP upgrade traffic.
//
// Parameters: the URL path (positional, required), then an optional
// "host=" to override the Host header sent in the handshake.
func newWSDialer(cfg Config, inner Dialer, params []string) (Dialer, error) {
	d := &wsDialer{cfg: cfg, inner: inner}
	err := keyValueParams(params, func(key, value string) error {
		switch key {
		case "":
			if d.path != "" {
				return invalidParamsError("ws", "multiple paths")
			}
			d.path = value
		case "host":
			d.host = value
		default:
			return invalidParamsError("ws", fmt.Sprintf("unsupported option %q", key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.path == "" {
		return nil, invalidParamsError("ws", "missing path")
	}
	if !strings.HasPrefix(d.path, "/") {
		d.path = "/" + d.path
	}
	return d, nil
}

func (d *wsDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, rejectDial(network, address, "ws supports tcp only")
	}

	wd := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			// The handshake URL names the destination; the inner chain does
			// the actual connect.
			return d.inner.DialContext(ctx, network, address)
		},
		HandshakeTimeout: d.cfg.NegotiationTimeout,
	}

	u := url.URL{Scheme: "ws", Host: address, Path: d.path}
	if d.host != "" {
		u.Host = d.host
	}

	wc, resp, err := wd.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, classifyDial(network, address, fmt.Errorf("websocket handshake: %w", err))
	}

	return &wsConn{ws: wc}, nil
}

// wsConn adapts a message-oriented websocket connection to the byte-stream
// net.Conn contract. A write becomes one binary message; reads drain
// messages in order.
type wsConn struct {
	ws *websocket.Conn

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

var _ net.Conn = (*wsConn)(nil)

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return 0, io.EOF
			}
			return 0, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		c.pending = data
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite signals end-of-stream to the peer with a close frame while
// leaving the read side open to drain buffered messages.
func (c *wsConn) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}

func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error      { return firstErr(c.ws.SetReadDeadline(t), c.ws.SetWriteDeadline(t)) }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
