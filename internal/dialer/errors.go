package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ParseError reports a syntactically malformed descriptor token. It is
// returned by Parse before any strategy lookup happens; unknown strategy
// names and bad parameter values are ConfigErrors instead.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed strategy token %q: %s", e.Token, e.Reason)
}

// Sentinels matched through ConfigError via errors.Is.
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// ConfigError reports a failure to build a dialer from a parsed spec: the
// strategy name is not registered, or its constructor rejected the
// parameters.
type ConfigError struct {
	Strategy string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("strategy %q: %v", e.Strategy, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func unknownStrategyError(name string) error {
	return &ConfigError{Strategy: name, Err: ErrUnknownStrategy}
}

func invalidParamsError(name, detail string) error {
	return &ConfigError{Strategy: name, Err: fmt.Errorf("%w: %s", ErrInvalidParameters, detail)}
}

// DialErrorKind classifies dial failures coarsely enough for callers to
// decide between reporting, retrying, and giving up.
type DialErrorKind int

const (
	KindUnclassified DialErrorKind = iota
	KindResolutionFailed
	KindConnectionRefused
	KindTimeout
	KindStrategyRejected
)

func (k DialErrorKind) String() string {
	switch k {
	case KindResolutionFailed:
		return "resolution failed"
	case KindConnectionRefused:
		return "connection refused"
	case KindTimeout:
		return "timeout"
	case KindStrategyRejected:
		return "strategy rejected"
	default:
		return "dial failed"
	}
}

// DialError wraps a failed dial with its classification and target.
type DialError struct {
	Kind    DialErrorKind
	Network string
	Address string
	Err     error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s %s: %s: %v", e.Network, e.Address, e.Kind, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// classifyDial wraps err in a DialError, deriving the kind from the
// underlying failure. Already-classified errors pass through unchanged so
// inner strategies keep their verdicts.
func classifyDial(network, address string, err error) error {
	var de *DialError
	if errors.As(err, &de) {
		return err
	}

	kind := KindUnclassified
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		kind = KindResolutionFailed
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnectionRefused
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &DialError{Kind: kind, Network: network, Address: address, Err: err}
}

// rejectDial reports that a strategy cannot serve the requested dial, e.g.
// a non-TCP network. It must never silently fall through to the base dialer.
func rejectDial(network, address, detail string) error {
	return &DialError{
		Kind:    KindStrategyRejected,
		Network: network,
		Address: address,
		Err:     errors.New(detail),
	}
}
