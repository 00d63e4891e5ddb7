package sampler

import (
	"context"
	"math/rand/v2"

	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// Stub returns a deterministic archive without touching the model's
// density: every parameter is its configured center (or the model's
// starting value) plus small seeded noise.
type Stub struct {
	Centers     map[string]float64
	Spread      float64 // default 0.01
	Divergences int     // reported on chain 0
}

var _ elasticity.Sampler = (*Stub)(nil)

// Sample implements elasticity.Sampler.
func (s *Stub) Sample(ctx context.Context, spec *elasticity.Spec, opts elasticity.SampleOptions) (*posterior.Archive, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := spec.ParameterNames()
	start := spec.Constrain(spec.Initial())
	centers := make([]float64, len(names))
	for i, n := range names {
		centers[i] = start[i]
		if v, ok := s.Centers[n]; ok {
			centers[i] = v
		}
	}
	spread := s.Spread
	if spread == 0 {
		spread = 0.01
	}

	arc := &posterior.Archive{
		Parameters:  names,
		Groups:      spec.Groups,
		Values:      make([][][]float64, opts.Chains),
		Divergences: make([]int, opts.Chains),
		Settings:    opts.Settings(),
	}
	for c := 0; c < opts.Chains; c++ {
		rng := rand.New(rand.NewPCG(opts.Seed+uint64(c), 1))
		chain := make([][]float64, opts.Draws)
		for d := range chain {
			row := make([]float64, len(names))
			for i := range row {
				row[i] = centers[i] + spread*rng.NormFloat64()
			}
			chain[d] = row
		}
		arc.Values[c] = chain
	}
	arc.Divergences[0] = s.Divergences
	return arc, nil
}
