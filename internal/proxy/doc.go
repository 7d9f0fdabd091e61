package proxy

// Package proxy implements strand's local forwarding proxy.
//
// A Server listens on a local address, speaks SOCKS5 CONNECT with each
// client to learn the intended destination, dials that destination through
// a shared dialer.Dialer, and relays bytes in both directions until either
// side closes. The server tracks every in-flight session so Stop can drain
// them within a deadline and force-close stragglers.
