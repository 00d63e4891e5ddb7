package elasticity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestPriorSet(t *testing.T) {
	tests := []struct {
		name  string
		base  Normal
		sigma float64
	}{
		{name: "default", base: Normal{-2.0, 0.5}, sigma: 0.5},
		{name: "informative", base: Normal{-1.8, 0.3}, sigma: 0.3},
		{name: "vague", base: Normal{0, 5}, sigma: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PriorSet(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, tt.base, p.BaseElasticity)
			assert.Equal(t, tt.sigma, p.Sigma.Sigma)
			assert.Equal(t, 1.0, p.SigmaGroupIntercept.Sigma)
		})
	}

	_, err := PriorSet("flat")
	require.Error(t, err)
	assert.True(t, model.IsConfigurationError(err))
}

func TestWithOverrides(t *testing.T) {
	p, err := PriorSet("default")
	require.NoError(t, err)

	got, err := p.WithOverrides(map[string]contract.PriorOverride{
		"base_elasticity": {Mu: ptr(-1.5)},
		"seasonal":        {Sigma: ptr(0.1)},
		"sigma_group":     {Sigma: ptr(0.4)},
	})
	require.NoError(t, err)
	assert.Equal(t, Normal{-1.5, 0.5}, got.BaseElasticity)
	assert.Equal(t, 0.1, got.Spring.Sigma)
	assert.Equal(t, 0.1, got.Summer.Sigma)
	assert.Equal(t, 0.1, got.Fall.Sigma)
	assert.Equal(t, 0.4, got.SigmaGroup.Sigma)

	// the built-in set is untouched
	again, _ := PriorSet("default")
	assert.Equal(t, -2.0, again.BaseElasticity.Mu)

	_, err = p.WithOverrides(map[string]contract.PriorOverride{"sigma": {Mu: ptr(1)}})
	assert.True(t, model.IsConfigurationError(err))
}

func TestSampleOptions_Validate(t *testing.T) {
	ok := SampleOptions{Draws: 10, Tune: 0, Chains: 1, TargetAccept: 0.9, MaxLeapfrog: 8}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.TargetAccept = 1
	assert.Error(t, bad.Validate())
	bad = ok
	bad.Chains = 0
	assert.Error(t, bad.Validate())
}
