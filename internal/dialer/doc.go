package dialer

// Package dialer provides outbound dialing implementations used by strand.
//
// A Dialer implements a small interface (DialContext) and may be wrapped by
// strategy decorators that transform the dial or the resulting connection,
// such as splitting the first write or tunneling through an upstream proxy.
// Chains of strategies are described by a compact text descriptor (see Parse)
// and assembled by a Registry of named constructors.
