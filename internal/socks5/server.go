package socks5

import (
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Request is a parsed client request. Address is the destination in
// "host:port" form; only CONNECT requests produce one.
type Request struct {
	raw *txsocks5.Request
}

// Address returns the requested destination as "host:port".
func (r *Request) Address() string { return r.raw.Address() }

// Atyp returns the request's address type byte, for use in error replies.
func (r *Request) Atyp() byte { return r.raw.Atyp }

// ServerHandshake performs the server side of the SOCKS5 greeting
// (no-auth only) and reads the client's request. Non-CONNECT commands are
// answered with "command not supported" and returned as an error.
func ServerHandshake(conn net.Conn) (*Request, error) {
	if err := serverNegotiate(conn); err != nil {
		return nil, err
	}

	raw, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if raw.Cmd != txsocks5.CmdConnect {
		WriteCommandNotSupportedReply(conn, raw.Atyp)
		return nil, fmt.Errorf("unsupported command %d", raw.Cmd)
	}

	return &Request{raw: raw}, nil
}

func serverNegotiate(conn net.Conn) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	if !containsMethod(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF indicates no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
		return errors.New("client does not offer no-auth")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}
	return nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
