package elasticity

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// SampleOptions configures a sampling run.
type SampleOptions struct {
	Draws        int
	Tune         int
	Chains       int
	TargetAccept float64
	Seed         uint64
	MaxLeapfrog  int
}

// Validate rejects settings no engine can honour.
func (o SampleOptions) Validate() error {
	switch {
	case o.Draws < 1:
		return eris.Errorf("elasticity: draws must be positive, got %d", o.Draws)
	case o.Tune < 0:
		return eris.Errorf("elasticity: tune must be non-negative, got %d", o.Tune)
	case o.Chains < 1:
		return eris.Errorf("elasticity: chains must be positive, got %d", o.Chains)
	case o.TargetAccept <= 0 || o.TargetAccept >= 1:
		return eris.Errorf("elasticity: target_accept must be in (0, 1), got %v", o.TargetAccept)
	case o.MaxLeapfrog < 1:
		return eris.Errorf("elasticity: max_leapfrog must be positive, got %d", o.MaxLeapfrog)
	}
	return nil
}

// Settings converts the options into the form recorded in a draw archive.
func (o SampleOptions) Settings() posterior.Settings {
	return posterior.Settings{
		Draws:        o.Draws,
		Tune:         o.Tune,
		Chains:       o.Chains,
		TargetAccept: o.TargetAccept,
		Seed:         o.Seed,
		MaxLeapfrog:  o.MaxLeapfrog,
	}
}

// Sampler draws from the posterior of a built model. Implementations block
// until every chain finishes; a failed chain fails the call.
type Sampler interface {
	Sample(ctx context.Context, spec *Spec, opts SampleOptions) (*posterior.Archive, error)
}
