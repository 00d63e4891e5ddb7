package posterior

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ParameterSummary describes the marginal posterior of one parameter.
type ParameterSummary struct {
	Parameter string  `json:"parameter" csv:"parameter"`
	Mean      float64 `json:"mean" csv:"mean"`
	Median    float64 `json:"median" csv:"median"`
	Std       float64 `json:"std" csv:"std"`
	Lower     float64 `json:"ci_lower" csv:"ci_lower"`
	Upper     float64 `json:"ci_upper" csv:"ci_upper"`
}

// Summarize computes mean, median, population standard deviation and the
// central 95% interval of every parameter, draws pooled across chains.
func Summarize(a *Archive) []ParameterSummary {
	out := make([]ParameterSummary, 0, len(a.Parameters))
	for _, name := range a.Parameters {
		s, _ := a.Samples(name)
		out = append(out, summarize(name, s))
	}
	return out
}

func summarize(name string, x []float64) ParameterSummary {
	sorted := sortedCopy(x)
	mean, std := stat.PopMeanStdDev(x, nil)
	return ParameterSummary{
		Parameter: name,
		Mean:      mean,
		Median:    percentile(sorted, 50),
		Std:       std,
		Lower:     percentile(sorted, 2.5),
		Upper:     percentile(sorted, 97.5),
	}
}

func sortedCopy(x []float64) []float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return s
}

// percentile interpolates linearly between closest ranks of sorted data,
// p in [0, 100].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Interval is a mean with a central 95% interval.
type Interval struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"ci_lower"`
	Upper float64 `json:"ci_upper"`
}

func interval(x []float64) Interval {
	sorted := sortedCopy(x)
	return Interval{Mean: stat.Mean(x, nil), Lower: percentile(sorted, 2.5), Upper: percentile(sorted, 97.5)}
}

func fraction(x []float64, pred func(float64) bool) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range x {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(x))
}
