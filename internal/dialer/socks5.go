package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/die-net/strand/internal/socks5"
)

type socks5Dialer struct {
	cfg       Config
	inner     Dialer
	proxyAddr string
	auth      socks5.Auth
}

// newSOCKS5Dialer builds the "socks5" strategy: dials the upstream SOCKS5
// proxy through the inner chain and negotiates a CONNECT to the requested
// destination over that connection, so the tunnel itself benefits from any
// strategies to the right of this one in the descriptor.
//
// Parameters: the proxy "host:port" (positional, required), then optional
// "user=" and "pass=" for username/password authentication.
func newSOCKS5Dialer(cfg Config, inner Dialer, params []string) (Dialer, error) {
	d := &socks5Dialer{cfg: cfg, inner: inner}
	err := keyValueParams(params, func(key, value string) error {
		switch key {
		case "":
			if d.proxyAddr != "" {
				return invalidParamsError("socks5", "multiple proxy addresses")
			}
			d.proxyAddr = value
		case "user":
			d.auth.Username = value
		case "pass":
			d.auth.Password = value
		default:
			return invalidParamsError("socks5", fmt.Sprintf("unsupported option %q", key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.proxyAddr == "" {
		return nil, invalidParamsError("socks5", "missing proxy address")
	}
	if _, _, err := net.SplitHostPort(d.proxyAddr); err != nil {
		return nil, invalidParamsError("socks5", fmt.Sprintf("proxy address %q: %v", d.proxyAddr, err))
	}

	return d, nil
}

func (d *socks5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, rejectDial(network, address, "socks5 supports tcp only")
	}

	conn, err := d.inner.DialContext(ctx, network, d.proxyAddr)
	if err != nil {
		return nil, err
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	if err := socks5.ClientDial(conn, d.auth, address); err != nil {
		conn.Close()
		return nil, classifyDial(network, address, fmt.Errorf("socks5 via %s: %w", d.proxyAddr, err))
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	return conn, nil
}
