package dialer

import (
	"strings"
)

// StrategySpec is one parsed strategy token: a name plus its positional
// parameters. Specs are immutable once parsed and consumed by
// Registry.Build.
type StrategySpec struct {
	Name   string
	Params []string
}

// Parse splits a descriptor into an ordered list of strategy specs.
//
// Tokens are separated by "|" and listed outermost-first: the leftmost token
// wraps everything to its right, and a dial call flows through the list in
// written order before reaching the base dialer. A token is "name" or
// "name:params"; the token is split at the first colon only, so parameter
// values may themselves contain colons (e.g. "socks5:proxy.example:1080").
// Parameters are "/"-separated and strategy-specific.
//
// Parsing is purely syntactic. Unknown strategy names and parameter values
// of the wrong type are not rejected here; Registry.Build reports those as
// ConfigErrors, which keeps parsing and capability resolution independently
// testable.
func Parse(descriptor string) ([]StrategySpec, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return nil, nil
	}

	parts := strings.Split(descriptor, "|")
	specs := make([]StrategySpec, 0, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			return nil, &ParseError{Token: part, Reason: "empty token"}
		}

		name, rawParams, hasParams := strings.Cut(token, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &ParseError{Token: token, Reason: "missing strategy name"}
		}

		spec := StrategySpec{Name: name}
		if hasParams {
			if rawParams == "" {
				return nil, &ParseError{Token: token, Reason: "colon with no parameters"}
			}
			spec.Params = strings.Split(rawParams, "/")
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// keyValueParams interprets params as key=value pairs for strategies that
// take named options. Bare values are reported through the "" key handler.
func keyValueParams(params []string, handle func(key, value string) error) error {
	for _, p := range params {
		key, value, found := strings.Cut(p, "=")
		if !found {
			if err := handle("", p); err != nil {
				return err
			}
			continue
		}
		if err := handle(strings.ToLower(strings.TrimSpace(key)), value); err != nil {
			return err
		}
	}
	return nil
}
