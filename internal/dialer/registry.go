package dialer

import (
	"fmt"
)

// NewDialerFunc builds a strategy decorator around inner, parameterized by
// the spec's positional params. Constructors must validate their parameters
// eagerly and perform no network I/O.
type NewDialerFunc func(cfg Config, inner Dialer, params []string) (Dialer, error)

// Registry maps strategy names to constructors. It is an explicit object
// rather than process-global state so tests can register custom strategies
// without affecting each other.
type Registry struct {
	cfg      Config
	builders map[string]NewDialerFunc
}

// NewRegistry returns an empty registry. Most callers want DefaultRegistry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, builders: make(map[string]NewDialerFunc)}
}

// DefaultRegistry returns a registry with all built-in strategies
// registered.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry(cfg)

	// Keep the list sorted.
	must(r.Register("disorder", newDisorderDialer))
	must(r.Register("retry", newRetryDialer))
	must(r.Register("socks5", newSOCKS5Dialer))
	must(r.Register("split", newSplitDialer))
	must(r.Register("tls", newTLSDialer))
	must(r.Register("tlsfrag", newTLSFragDialer))
	must(r.Register("ws", newWSDialer))

	return r
}

// Register adds a named strategy constructor. Registering the same name
// twice is a programming error and is rejected.
func (r *Registry) Register(name string, f NewDialerFunc) error {
	if name == "" || f == nil {
		return fmt.Errorf("register strategy: name and constructor are required")
	}
	if _, found := r.builders[name]; found {
		return fmt.Errorf("register strategy: %q added twice", name)
	}
	r.builders[name] = f
	return nil
}

// Build folds specs over the direct base dialer, right to left, so the
// leftmost spec becomes the outermost decorator. An empty spec list yields
// the base dialer unmodified.
//
// Build is deterministic and performs no network I/O; failures are
// ConfigErrors (ErrUnknownStrategy, ErrInvalidParameters).
func (r *Registry) Build(specs []StrategySpec) (Dialer, error) {
	d := NewDirectDialer(r.cfg)

	for i := len(specs) - 1; i >= 0; i-- {
		spec := specs[i]
		newDialer, found := r.builders[spec.Name]
		if !found {
			return nil, unknownStrategyError(spec.Name)
		}
		var err error
		d, err = newDialer(r.cfg, d, spec.Params)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
