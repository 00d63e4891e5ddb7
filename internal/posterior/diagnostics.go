package posterior

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParameterDiagnostic holds the convergence statistics of one parameter.
type ParameterDiagnostic struct {
	Parameter string  `json:"parameter" csv:"parameter"`
	RHat      float64 `json:"r_hat" csv:"r_hat"`
	ESS       float64 `json:"ess_bulk" csv:"ess_bulk"`
}

// Diagnostics collects per-parameter statistics and their extremes.
type Diagnostics struct {
	Parameters  []ParameterDiagnostic `json:"parameters"`
	MaxRHat     float64               `json:"max_r_hat"`
	MinESS      float64               `json:"min_ess_bulk"`
	Divergences int                   `json:"divergences"`
}

// Diagnose computes rank-normalized split R-hat (the larger of the bulk
// and folded variants) and bulk effective sample size per parameter.
func Diagnose(a *Archive) Diagnostics {
	d := Diagnostics{
		Parameters:  make([]ParameterDiagnostic, 0, len(a.Parameters)),
		MaxRHat:     math.Inf(-1),
		MinESS:      math.Inf(1),
		Divergences: a.TotalDivergences(),
	}
	for idx, name := range a.Parameters {
		split := splitChains(a.Chain(idx))
		bulk := rankNormalize(split)
		rhat := math.Max(splitRHat(bulk), splitRHat(rankNormalize(fold(split))))
		ess := effectiveSampleSize(bulk)

		d.Parameters = append(d.Parameters, ParameterDiagnostic{Parameter: name, RHat: rhat, ESS: ess})
		// NaN propagates: an undefined statistic fails the verdict.
		d.MaxRHat = math.Max(d.MaxRHat, rhat)
		d.MinESS = math.Min(d.MinESS, ess)
	}
	return d
}

// splitChains halves every chain, dropping the middle draw of odd-length
// chains.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		half := len(c) / 2
		out = append(out, c[:half], c[len(c)-half:])
	}
	return out
}

// fold maps draws to their absolute deviation from the pooled median.
func fold(chains [][]float64) [][]float64 {
	var pooled []float64
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	med := percentile(sortedCopy(pooled), 50)
	out := make([][]float64, len(chains))
	for i, c := range chains {
		out[i] = make([]float64, len(c))
		for j, v := range c {
			out[i][j] = math.Abs(v - med)
		}
	}
	return out
}

// rankNormalize replaces pooled draws by normal scores of their average
// ranks, (r - 3/8) / (S + 1/4).
func rankNormalize(chains [][]float64) [][]float64 {
	type entry struct {
		v    float64
		c, i int
	}
	var all []entry
	for c, chain := range chains {
		for i, v := range chain {
			all = append(all, entry{v, c, i})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].v < all[j].v })

	out := make([][]float64, len(chains))
	for c, chain := range chains {
		out[c] = make([]float64, len(chain))
	}
	s := float64(len(all))
	for i := 0; i < len(all); {
		j := i
		for j+1 < len(all) && all[j+1].v == all[i].v {
			j++
		}
		rank := float64(i+j)/2 + 1
		z := distuv.UnitNormal.Quantile((rank - 0.375) / (s + 0.25))
		for k := i; k <= j; k++ {
			out[all[k].c][all[k].i] = z
		}
		i = j + 1
	}
	return out
}

func splitRHat(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 || len(chains[0]) < 2 {
		return math.NaN()
	}
	n := float64(len(chains[0]))
	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	if w == 0 {
		return math.NaN()
	}
	b := n * stat.Variance(means, nil)
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// autocovariance returns the biased autocovariance of x at every lag.
func autocovariance(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	size := 1
	for size < 2*n {
		size <<= 1
	}
	padded := make([]float64, size)
	for i, v := range x {
		padded[i] = v - mean
	}
	fft := fourier.NewFFT(size)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = c * cmplx.Conj(c)
	}
	seq := fft.Sequence(nil, coeff)
	acov := make([]float64, n)
	for t := range acov {
		acov[t] = seq[t] / float64(size) / float64(n)
	}
	return acov
}

// effectiveSampleSize follows Geyer's initial monotone sequence over the
// multi-chain autocorrelation estimate.
func effectiveSampleSize(chains [][]float64) float64 {
	m := len(chains)
	if m == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	n := len(chains[0])

	acov := make([][]float64, m)
	means := make([]float64, m)
	var meanVar float64
	for i, c := range chains {
		acov[i] = autocovariance(c)
		means[i] = stat.Mean(c, nil)
		meanVar += acov[i][0]
	}
	meanVar = meanVar / float64(m) * float64(n) / float64(n-1)
	varPlus := meanVar * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return math.NaN()
	}

	meanAcov := func(t int) float64 {
		var s float64
		for i := range acov {
			s += acov[i][t]
		}
		return s / float64(m)
	}

	rho := make([]float64, n)
	rhoEven := 1.0
	rho[0] = rhoEven
	rhoOdd := 1 - (meanVar-meanAcov(1))/varPlus
	rho[1] = rhoOdd

	t := 1
	for t < n-3 && rhoEven+rhoOdd > 0 {
		rhoEven = 1 - (meanVar-meanAcov(t+1))/varPlus
		rhoOdd = 1 - (meanVar-meanAcov(t+2))/varPlus
		if rhoEven+rhoOdd >= 0 {
			rho[t+1] = rhoEven
			rho[t+2] = rhoOdd
		}
		t += 2
	}
	maxT := t - 2
	if rhoEven > 0 {
		rho[maxT+1] = rhoEven
	}

	for t := 1; t <= maxT-2; t += 2 {
		if rho[t+1]+rho[t+2] > rho[t-1]+rho[t] {
			rho[t+1] = (rho[t-1] + rho[t]) / 2
			rho[t+2] = rho[t+1]
		}
	}

	total := float64(m * n)
	var sum float64
	for _, r := range rho[:maxT+1] {
		sum += r
	}
	tau := -1 + 2*sum + rho[maxT+1]
	tau = math.Max(tau, 1/math.Log10(total))
	return total / tau
}
