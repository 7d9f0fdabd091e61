package proxy

import (
	"net"
	"time"

	"github.com/die-net/strand/internal/dialer"
)

type Config struct {
	// Dialer establishes upstream connections. It is shared, not owned: the
	// same dialer may serve several proxy instances and outlives all of
	// them.
	Dialer dialer.Dialer

	// NegotiationTimeout bounds the client-side SOCKS5 handshake.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// Verbose enables per-connection error logging.
	Verbose bool
}
