// Package posterior summarises draw archives: moments and intervals,
// convergence diagnostics, pricing scenarios and comparisons.
package posterior

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Settings records how an archive was sampled.
type Settings struct {
	Draws        int     `json:"draws"`
	Tune         int     `json:"tune"`
	Chains       int     `json:"chains"`
	TargetAccept float64 `json:"target_accept"`
	Seed         uint64  `json:"seed"`
	MaxLeapfrog  int     `json:"max_leapfrog"`
}

// Archive holds chains x draws x parameters posterior values.
type Archive struct {
	Parameters  []string
	Groups      []string
	Values      [][][]float64 // [chain][draw][parameter]
	Divergences []int         // per chain
	Settings    Settings
}

// Chains is the number of chains.
func (a *Archive) Chains() int { return len(a.Values) }

// Draws is the number of retained draws per chain.
func (a *Archive) Draws() int {
	if len(a.Values) == 0 {
		return 0
	}
	return len(a.Values[0])
}

// TotalDivergences sums divergent transitions over chains.
func (a *Archive) TotalDivergences() int {
	n := 0
	for _, d := range a.Divergences {
		n += d
	}
	return n
}

// Validate checks the archive is rectangular and non-empty.
func (a *Archive) Validate() error {
	if len(a.Values) == 0 || len(a.Values[0]) == 0 {
		return eris.New("posterior: empty archive")
	}
	draws := len(a.Values[0])
	for c, chain := range a.Values {
		if len(chain) != draws {
			return eris.Errorf("posterior: chain %d has %d draws, want %d", c, len(chain), draws)
		}
		for d, row := range chain {
			if len(row) != len(a.Parameters) {
				return eris.Errorf("posterior: chain %d draw %d has %d values, want %d", c, d, len(row), len(a.Parameters))
			}
		}
	}
	if len(a.Divergences) != 0 && len(a.Divergences) != len(a.Values) {
		return eris.Errorf("posterior: %d divergence counts for %d chains", len(a.Divergences), len(a.Values))
	}
	return nil
}

// Index returns the position of a parameter.
func (a *Archive) Index(name string) (int, bool) {
	for i, p := range a.Parameters {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

// Chain returns the draws of parameter idx per chain.
func (a *Archive) Chain(idx int) [][]float64 {
	out := make([][]float64, len(a.Values))
	for c, chain := range a.Values {
		out[c] = make([]float64, len(chain))
		for d, row := range chain {
			out[c][d] = row[idx]
		}
	}
	return out
}

// Samples returns the draws of a parameter flattened across chains, chain
// by chain.
func (a *Archive) Samples(name string) ([]float64, error) {
	idx, ok := a.Index(name)
	if !ok {
		return nil, eris.Errorf("posterior: unknown parameter %q", name)
	}
	out := make([]float64, 0, a.Chains()*a.Draws())
	for _, chain := range a.Values {
		for _, row := range chain {
			out = append(out, row[idx])
		}
	}
	return out, nil
}

// GroupSamples returns the draws of prefix[group], e.g.
// base_elasticity[BJ's]. The group name is matched exactly, then case
// insensitively.
func (a *Archive) GroupSamples(prefix, group string) ([]float64, error) {
	if s, err := a.Samples(prefix + "[" + group + "]"); err == nil {
		return s, nil
	}
	for _, g := range a.Groups {
		if strings.EqualFold(g, group) {
			return a.Samples(prefix + "[" + g + "]")
		}
	}
	return nil, eris.Errorf("posterior: unknown group %q (known: %v)", group, a.Groups)
}
