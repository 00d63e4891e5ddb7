package posterior

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Thresholds are the convergence acceptance criteria.
type Thresholds struct {
	RHatMax        float64 `json:"rhat_max"`
	ESSMin         float64 `json:"ess_min"`
	MaxDivergences int     `json:"max_divergences"`
}

// DefaultThresholds: R-hat below 1.01, bulk ESS above 400, no divergences.
func DefaultThresholds() Thresholds {
	return Thresholds{RHatMax: 1.01, ESSMin: 400, MaxDivergences: 0}
}

// Assessment is the outcome of a convergence check.
type Assessment struct {
	Passed     bool       `json:"passed"`
	Failures   []string   `json:"failures,omitempty"`
	Thresholds Thresholds `json:"thresholds"`
}

// ConvergenceWarning reports failed convergence criteria. It is not fatal:
// artifacts are still written with a failed verdict.
type ConvergenceWarning struct {
	Failures []string
}

func (w *ConvergenceWarning) Error() string {
	return "convergence: " + strings.Join(w.Failures, "; ")
}

// IsConvergenceWarning reports whether err wraps a ConvergenceWarning.
func IsConvergenceWarning(err error) bool {
	var target *ConvergenceWarning
	return errors.As(err, &target)
}

// Verdict passes iff max R-hat < RHatMax, min ESS > ESSMin and divergences
// do not exceed MaxDivergences. On failure the returned error is a
// *ConvergenceWarning naming every failed criterion.
func Verdict(d Diagnostics, t Thresholds) (Assessment, error) {
	a := Assessment{Thresholds: t}

	if math.IsNaN(d.MaxRHat) || !(d.MaxRHat < t.RHatMax) {
		a.Failures = append(a.Failures, fmt.Sprintf("max r_hat %.4f not below %.4f%s", d.MaxRHat, t.RHatMax, worst(d, true)))
	}
	if math.IsNaN(d.MinESS) || !(d.MinESS > t.ESSMin) {
		a.Failures = append(a.Failures, fmt.Sprintf("min ess_bulk %.1f not above %.1f%s", d.MinESS, t.ESSMin, worst(d, false)))
	}
	if d.Divergences > t.MaxDivergences {
		a.Failures = append(a.Failures, fmt.Sprintf("%d divergent transitions (allowed %d)", d.Divergences, t.MaxDivergences))
	}

	a.Passed = len(a.Failures) == 0
	if a.Passed {
		return a, nil
	}
	return a, &ConvergenceWarning{Failures: a.Failures}
}

// worst names the parameter responsible for the extreme statistic.
func worst(d Diagnostics, rhat bool) string {
	name := ""
	best := math.NaN()
	for _, p := range d.Parameters {
		v := p.ESS
		if rhat {
			v = p.RHat
		}
		if math.IsNaN(v) {
			return " (" + p.Parameter + " undefined)"
		}
		if name == "" || (rhat && v > best) || (!rhat && v < best) {
			name, best = p.Parameter, v
		}
	}
	if name == "" {
		return ""
	}
	return " (" + name + ")"
}
