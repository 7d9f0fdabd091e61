package socks5

// Package socks5 provides the small, shared SOCKS5 handshake implementation
// used by strand.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 so
// that negotiation and CONNECT parsing/writing logic lives in one place,
// shared between the proxy server front end (internal/proxy) and the socks5
// upstream strategy (internal/dialer). It is deliberately not a full SOCKS5
// implementation: CONNECT only, no UDP associate, no BIND.
