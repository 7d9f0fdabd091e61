package dialer

import (
	"io"
	"net"
)

// ReadHalfCloser is a bidirectional stream that can shut down its read side
// independently, like net.TCPConn.CloseRead.
type ReadHalfCloser interface {
	CloseRead() error
}

// WriteHalfCloser is a bidirectional stream that can shut down its write
// side independently, like net.TCPConn.CloseWrite. The relay uses it to
// propagate EOF without tearing down the opposite direction.
type WriteHalfCloser interface {
	CloseWrite() error
}

// writerConn overrides a connection's write path while delegating
// everything else, including half-close, to the wrapped connection.
type writerConn struct {
	net.Conn
	w io.Writer
}

// WrapWriter returns conn with its Write calls routed through w. Strategies
// use it to install first-write transformations without touching read
// semantics. The returned conn preserves CloseRead/CloseWrite support of the
// underlying connection.
func WrapWriter(conn net.Conn, w io.Writer) net.Conn {
	return &writerConn{Conn: conn, w: w}
}

func (c *writerConn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *writerConn) ReadFrom(r io.Reader) (int64, error) {
	if rf, ok := c.w.(io.ReaderFrom); ok {
		return rf.ReadFrom(r)
	}
	// Disable the underlying conn's ReadFrom so writes still flow through w.
	return io.Copy(struct{ io.Writer }{c.w}, r)
}

func (c *writerConn) CloseRead() error {
	if rc, ok := c.Conn.(ReadHalfCloser); ok {
		return rc.CloseRead()
	}
	return c.Conn.Close()
}

func (c *writerConn) CloseWrite() error {
	if wc, ok := c.Conn.(WriteHalfCloser); ok {
		return wc.CloseWrite()
	}
	return c.Conn.Close()
}
