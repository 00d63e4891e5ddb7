package contract

import (
	"regexp"
	"slices"
	"sort"

	"github.com/ncruces/go-strftime"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// Registry maps retailer names to their contracts. It is read-only after
// construction and safe for concurrent lookups.
type Registry struct {
	contracts  map[string]Contract
	normalized map[string]string // normalized name or alias -> registered name
	order      []string          // sorted for deterministic iteration
	legacy     bool
}

// NewRegistry validates and compiles every contract. A malformed contract or
// two names that normalize to the same key is a ConfigurationError.
func NewRegistry(contracts map[string]Contract, legacyDefault bool) (*Registry, error) {
	r := &Registry{
		contracts:  make(map[string]Contract, len(contracts)),
		normalized: make(map[string]string, len(contracts)),
		legacy:     legacyDefault,
	}

	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.Register(name, contracts[name]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates c, applies column defaults and adds it under name.
func (r *Registry) Register(name string, c Contract) error {
	c = c.withDefaults(name)
	if err := validateContract(c); err != nil {
		return err
	}
	if _, err := strftime.Layout(c.Date.Format); err != nil {
		return model.NewConfigurationError(name, "date.format %q: %v", c.Date.Format, err)
	}
	if c.Date.Pattern != "" {
		re, err := regexp.Compile(c.Date.Pattern)
		if err != nil {
			return model.NewConfigurationError(name, "date.pattern: %v", err)
		}
		c.pattern = re
	}

	keys := []string{NormalizeName(name)}
	for _, a := range c.Aliases {
		if k := NormalizeName(a); !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	for _, key := range keys {
		if prev, dup := r.normalized[key]; dup {
			return model.NewConfigurationError(name, "contract name or alias %q collides with %q after normalization", key, prev)
		}
	}
	r.contracts[name] = c
	for _, key := range keys {
		r.normalized[key] = name
	}
	r.order = append(r.order, name)
	sort.Strings(r.order)
	return nil
}

// Lookup resolves a retailer name: exact match, then normalized match
// against names and contract aliases, then the built-in alias table, then
// the legacy default when enabled.
func (r *Registry) Lookup(retailer string) (Contract, error) {
	if c, ok := r.contracts[retailer]; ok {
		return c, nil
	}
	key := NormalizeName(retailer)
	if name, ok := r.normalized[key]; ok {
		return r.contracts[name], nil
	}
	for _, alias := range aliasesOf(key) {
		if name, ok := r.normalized[alias]; ok {
			return r.contracts[name], nil
		}
	}
	if r.legacy {
		return Legacy(retailer), nil
	}
	return Contract{}, model.NewConfigurationError(retailer,
		"no retailer_data_contracts entry matches and legacy_default is disabled (known: %v)", r.order)
}

// Names returns the registered contract names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	return len(r.order)
}
