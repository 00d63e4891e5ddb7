package posterior

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archiveOf builds an archive where gen yields the value of parameter p at
// (chain, draw).
func archiveOf(params []string, chains, draws int, gen func(c, d, p int) float64) *Archive {
	a := &Archive{Parameters: params, Divergences: make([]int, chains)}
	for c := 0; c < chains; c++ {
		chain := make([][]float64, draws)
		for d := 0; d < draws; d++ {
			row := make([]float64, len(params))
			for p := range params {
				row[p] = gen(c, d, p)
			}
			chain[d] = row
		}
		a.Values = append(a.Values, chain)
	}
	return a
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, percentile(x, 50), 1e-12)
	assert.InDelta(t, 1.075, percentile(x, 2.5), 1e-12)
	assert.InDelta(t, 3.925, percentile(x, 97.5), 1e-12)
	assert.Equal(t, 1.0, percentile(x, 0))
	assert.Equal(t, 4.0, percentile(x, 100))
	assert.Equal(t, 7.0, percentile([]float64{7}, 50))
	assert.True(t, math.IsNaN(percentile(nil, 50)))
}

func TestSummarize(t *testing.T) {
	a := archiveOf([]string{"x"}, 2, 3, func(c, d, _ int) float64 { return float64(3*c + d + 1) })
	s := Summarize(a)
	require.Len(t, s, 1)
	assert.Equal(t, "x", s[0].Parameter)
	assert.InDelta(t, 3.5, s[0].Mean, 1e-12)
	assert.InDelta(t, 3.5, s[0].Median, 1e-12)
	assert.InDelta(t, math.Sqrt(35.0/12), s[0].Std, 1e-12)
	assert.InDelta(t, 1.125, s[0].Lower, 1e-12)
	assert.InDelta(t, 5.875, s[0].Upper, 1e-12)
}

func TestArchive_Validate(t *testing.T) {
	a := archiveOf([]string{"x", "y"}, 2, 5, func(_, _, _ int) float64 { return 1 })
	require.NoError(t, a.Validate())
	assert.Equal(t, 2, a.Chains())
	assert.Equal(t, 5, a.Draws())

	a.Values[1] = a.Values[1][:4]
	assert.Error(t, a.Validate())
	assert.Error(t, (&Archive{}).Validate())
}

func TestArchive_GroupSamples(t *testing.T) {
	a := archiveOf([]string{"base_elasticity[BJ's]"}, 1, 2, func(_, d, _ int) float64 { return float64(d) })
	a.Groups = []string{"BJ's"}

	s, err := a.GroupSamples("base_elasticity", "bj's")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, s)

	_, err = a.GroupSamples("base_elasticity", "Costco")
	assert.Error(t, err)
}

func TestDiagnose_IndependentDraws(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	a := archiveOf([]string{"x"}, 4, 1000, func(_, _, _ int) float64 { return rng.NormFloat64() })
	d := Diagnose(a)

	require.Len(t, d.Parameters, 1)
	assert.Less(t, d.MaxRHat, 1.01)
	assert.Greater(t, d.MinESS, 2500.0)
	assert.Zero(t, d.Divergences)
}

func TestDiagnose_Autocorrelated(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	prev := make([]float64, 4)
	a := archiveOf([]string{"x"}, 4, 1000, func(c, _, _ int) float64 {
		prev[c] = 0.9*prev[c] + rng.NormFloat64()
		return prev[c]
	})
	d := Diagnose(a)
	// AR(1) with 0.9 keeps roughly 4000 * 0.1 / 1.9 draws.
	assert.Greater(t, d.MinESS, 100.0)
	assert.Less(t, d.MinESS, 450.0)
}

func TestDiagnose_SeparatedChains(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	a := archiveOf([]string{"x"}, 4, 500, func(c, _, _ int) float64 { return float64(c) + 0.1*rng.NormFloat64() })
	d := Diagnose(a)
	assert.Greater(t, d.MaxRHat, 1.5)
}

func TestVerdict(t *testing.T) {
	good := Diagnostics{
		Parameters: []ParameterDiagnostic{{Parameter: "a", RHat: 1.001, ESS: 1500}, {Parameter: "b", RHat: 1.004, ESS: 900}},
		MaxRHat:    1.004,
		MinESS:     900,
	}
	a, err := Verdict(good, DefaultThresholds())
	require.NoError(t, err)
	assert.True(t, a.Passed)

	tests := []struct {
		name   string
		mutate func(*Diagnostics)
		want   string
	}{
		{name: "rhat", mutate: func(d *Diagnostics) { d.MaxRHat = 1.02; d.Parameters[1].RHat = 1.02 }, want: "r_hat"},
		{name: "rhat at threshold", mutate: func(d *Diagnostics) { d.MaxRHat = 1.01 }, want: "r_hat"},
		{name: "ess", mutate: func(d *Diagnostics) { d.MinESS = 400 }, want: "ess_bulk"},
		{name: "divergences", mutate: func(d *Diagnostics) { d.Divergences = 1 }, want: "divergent"},
		{name: "undefined", mutate: func(d *Diagnostics) { d.MaxRHat = math.NaN(); d.Parameters[0].RHat = math.NaN() }, want: "undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := good
			d.Parameters = append([]ParameterDiagnostic(nil), good.Parameters...)
			tt.mutate(&d)
			a, err := Verdict(d, DefaultThresholds())
			require.Error(t, err)
			assert.True(t, IsConvergenceWarning(err))
			assert.False(t, a.Passed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func scenarioArchive() *Archive {
	params := []string{"base_elasticity[BJ's]", "promo_elasticity[BJ's]", "base_elasticity[Costco]", "promo_elasticity[Costco]"}
	a := archiveOf(params, 2, 50, func(_, d, p int) float64 {
		switch p {
		case 0:
			return -2
		case 1:
			return -4
		case 2:
			return -1.5 + 0.01*float64(d%5)
		default:
			return -1
		}
	})
	a.Groups = []string{"BJ's", "Costco"}
	return a
}

func TestPriceChange(t *testing.T) {
	res, err := PriceChange(scenarioArchive(), "BJ's", 10)
	require.NoError(t, err)
	assert.Equal(t, ScenarioPrice, res.Kind)
	assert.InDelta(t, -20, res.VolumePct.Mean, 1e-9)
	assert.InDelta(t, -12, res.RevenuePct.Mean, 1e-9)
	assert.Zero(t, res.ProbRevenueUp)
}

func TestDiscountDepth(t *testing.T) {
	for _, depth := range []float64{10, -10} {
		res, err := DiscountDepth(scenarioArchive(), "BJ's", depth)
		require.NoError(t, err)
		assert.Equal(t, -10.0, res.PriceChangePct)
		assert.Equal(t, 10.0, res.DiscountPct)
		assert.InDelta(t, 40, res.VolumePct.Mean, 1e-9)
		assert.InDelta(t, 26, res.RevenuePct.Mean, 1e-9)
		assert.Equal(t, 1.0, res.ProbRevenueUp)
	}

	_, err := DiscountDepth(scenarioArchive(), "Walmart", 10)
	assert.Error(t, err)
}

func TestCompareGroups(t *testing.T) {
	c, err := CompareGroups(scenarioArchive(), "base_elasticity", "BJ's", "Costco")
	require.NoError(t, err)
	assert.Less(t, c.Difference.Mean, 0.0)
	assert.Equal(t, 1.0, c.ProbALess)
	assert.Zero(t, c.ProbAGreater)
}

func TestCompareElasticities(t *testing.T) {
	c, err := CompareElasticities(scenarioArchive(), "BJ's")
	require.NoError(t, err)
	assert.InDelta(t, 2, c.Ratio.Mean, 1e-12)
	assert.Equal(t, 1.0, c.ProbPromoLarger)

	c, err = CompareElasticities(scenarioArchive(), "Costco")
	require.NoError(t, err)
	assert.Zero(t, c.ProbPromoLarger)
}

func TestProbability(t *testing.T) {
	a := archiveOf([]string{"beta"}, 1, 4, func(_, d, _ int) float64 { return float64(d) })

	p, err := Probability(a, "beta", "<", 2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)

	p, err = ProbabilityOf(a, "beta >= 1")
	require.NoError(t, err)
	assert.Equal(t, 0.75, p)

	_, err = ProbabilityOf(a, "beta == 1")
	assert.Error(t, err)
	_, err = Probability(a, "gamma", ">", 0)
	assert.Error(t, err)
}
