package dialer

import (
	"context"
	"net"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewFromDescriptor parses descriptor and builds the composed Dialer it
// describes, using the default strategy registry.
//
// The descriptor is a sequence of strategy tokens separated by "|", applied
// outermost-first in written order, so "tlsfrag:5|socks5:host:1080" wraps a
// SOCKS5 tunnel dialer in TLS-record fragmentation. An empty descriptor
// yields the direct TCP dialer.
//
// Each token is "name" or "name:params" with "/"-separated parameters; see
// the per-strategy constructors for their parameter lists.
func NewFromDescriptor(cfg Config, descriptor string) (Dialer, error) {
	specs, err := Parse(descriptor)
	if err != nil {
		return nil, err
	}
	return DefaultRegistry(cfg).Build(specs)
}
