package dialer

import (
	"context"
	"io"
	"net"
	"strconv"
)

// maxSplitOffset bounds split/disorder prefix lengths to one TCP segment's
// worth of payload.
const maxSplitOffset = 65535

type splitDialer struct {
	inner  Dialer
	offset int64
}

// newSplitDialer builds the "split" strategy: the first write on each dialed
// connection is broken into two writes at the configured byte offset, which
// defeats classifiers that only inspect the first segment. Subsequent writes
// pass through unmodified.
//
// Parameters: one integer offset in [1, 65535].
func newSplitDialer(_ Config, inner Dialer, params []string) (Dialer, error) {
	offset, err := singleOffsetParam("split", params)
	if err != nil {
		return nil, err
	}
	return &splitDialer{inner: inner, offset: offset}, nil
}

func (d *splitDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return WrapWriter(conn, &splitWriter{w: conn, prefix: d.offset}), nil
}

// splitWriter ensures the byte stream is split at prefix: one write ends at
// byte index prefix-1 and the next starts at prefix. Writer state is
// per-connection, so concurrent dials never share it.
type splitWriter struct {
	w      io.Writer
	prefix int64
}

var _ io.ReaderFrom = (*splitWriter)(nil)

func (w *splitWriter) Write(p []byte) (int, error) {
	var written int
	if 0 < w.prefix && w.prefix < int64(len(p)) {
		n, err := w.w.Write(p[:w.prefix])
		written += n
		w.prefix -= int64(n)
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	n, err := w.w.Write(p)
	written += n
	w.prefix -= int64(n)
	return written, err
}

func (w *splitWriter) ReadFrom(source io.Reader) (int64, error) {
	var written int64
	if w.prefix > 0 {
		n, err := io.CopyN(w.w, source, w.prefix)
		written += n
		w.prefix -= n
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
	n, err := io.Copy(w.w, source)
	return written + n, err
}

// singleOffsetParam validates the one-positive-integer parameter shape
// shared by split and disorder.
func singleOffsetParam(strategy string, params []string) (int64, error) {
	if len(params) != 1 {
		return 0, invalidParamsError(strategy, "want exactly one offset parameter")
	}
	offset, err := strconv.Atoi(params[0])
	if err != nil {
		return 0, invalidParamsError(strategy, "offset "+strconv.Quote(params[0])+" is not a number")
	}
	if offset < 1 || offset > maxSplitOffset {
		return 0, invalidParamsError(strategy, "offset must be in [1, 65535]")
	}
	return int64(offset), nil
}
