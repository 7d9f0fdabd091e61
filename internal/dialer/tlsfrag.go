package dialer

import (
	"context"
	"encoding/binary"
	"io"
	"net"
)

const (
	tlsRecordHeaderLen  = 5
	tlsRecordHandshake  = 0x16
	tlsMaxRecordPayload = 16384
)

type tlsFragDialer struct {
	inner    Dialer
	splitLen int
}

// newTLSFragDialer builds the "tlsfrag" strategy: the first outgoing TLS
// handshake record (typically the Client Hello) is re-encoded as two records
// split at the configured payload offset, so the server name never appears
// in one contiguous segment. Streams whose first byte is not a TLS handshake
// record pass through untouched.
//
// Parameters: one integer payload offset in [1, 65535].
func newTLSFragDialer(_ Config, inner Dialer, params []string) (Dialer, error) {
	offset, err := singleOffsetParam("tlsfrag", params)
	if err != nil {
		return nil, err
	}
	return &tlsFragDialer{inner: inner, splitLen: int(offset)}, nil
}

func (d *tlsFragDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.inner.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return WrapWriter(conn, &recordFragWriter{w: conn, splitLen: d.splitLen}), nil
}

// recordFragWriter buffers the stream until the first TLS record is complete,
// emits it as two records split at splitLen, then passes everything through.
type recordFragWriter struct {
	w        io.Writer
	splitLen int
	buf      []byte
	done     bool
}

func (f *recordFragWriter) Write(p []byte) (int, error) {
	if f.done {
		return f.w.Write(p)
	}

	f.buf = append(f.buf, p...)
	if !f.isFragmentable() {
		if err := f.flush(); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if len(f.buf) < tlsRecordHeaderLen {
		return len(p), nil
	}

	recLen := int(binary.BigEndian.Uint16(f.buf[3:tlsRecordHeaderLen]))
	if len(f.buf) < tlsRecordHeaderLen+recLen {
		// First record still incomplete; keep buffering. The caller's bytes
		// are accepted, they just haven't hit the wire yet.
		return len(p), nil
	}

	if err := f.writeFragmented(recLen); err != nil {
		return 0, err
	}
	return len(p), nil
}

// isFragmentable reports whether the buffered bytes could still be the start
// of a fragmentable handshake record. Undersized buffers are fragmentable
// until proven otherwise.
func (f *recordFragWriter) isFragmentable() bool {
	if len(f.buf) >= 1 && f.buf[0] != tlsRecordHandshake {
		return false
	}
	if len(f.buf) < tlsRecordHeaderLen {
		return true
	}
	recLen := int(binary.BigEndian.Uint16(f.buf[3:tlsRecordHeaderLen]))
	return recLen > 1 && recLen <= tlsMaxRecordPayload && f.splitLen < recLen
}

// writeFragmented emits the buffered first record as two records split at
// splitLen, followed by any trailing bytes, then switches to passthrough.
func (f *recordFragWriter) writeFragmented(recLen int) error {
	header := f.buf[:tlsRecordHeaderLen]
	payload := f.buf[tlsRecordHeaderLen : tlsRecordHeaderLen+recLen]
	rest := f.buf[tlsRecordHeaderLen+recLen:]

	out := make([]byte, 0, len(f.buf)+tlsRecordHeaderLen)
	for _, frag := range [][]byte{payload[:f.splitLen], payload[f.splitLen:]} {
		hdr := make([]byte, tlsRecordHeaderLen)
		copy(hdr, header)
		binary.BigEndian.PutUint16(hdr[3:], uint16(len(frag)))
		out = append(out, hdr...)
		out = append(out, frag...)
	}
	out = append(out, rest...)

	f.buf = nil
	f.done = true
	_, err := f.w.Write(out)
	return err
}

// flush abandons fragmentation and forwards whatever was buffered.
func (f *recordFragWriter) flush() error {
	buf := f.buf
	f.buf = nil
	f.done = true
	if len(buf) == 0 {
		return nil
	}
	_, err := f.w.Write(buf)
	return err
}
