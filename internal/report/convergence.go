package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// Convergence is the JSON form of diagnostics plus verdict. Undefined or
// infinite statistics are encoded as null.
type Convergence struct {
	Passed              bool                   `json:"passed"`
	Failures            []string               `json:"failures"`
	Thresholds          posterior.Thresholds   `json:"thresholds"`
	MaxRHat             *float64               `json:"max_r_hat"`
	MinESS              *float64               `json:"min_ess_bulk"`
	Divergences         int                    `json:"divergences"`
	DivergencesPerChain []int                  `json:"divergences_per_chain"`
	Parameters          []ConvergenceParameter `json:"parameters"`
}

// ConvergenceParameter holds one parameter's statistics.
type ConvergenceParameter struct {
	Parameter string   `json:"parameter"`
	RHat      *float64 `json:"r_hat"`
	ESS       *float64 `json:"ess_bulk"`
}

// NewConvergence assembles the report from diagnostics and an assessment.
func NewConvergence(d posterior.Diagnostics, a posterior.Assessment, perChain []int) Convergence {
	c := Convergence{
		Passed:              a.Passed,
		Failures:            a.Failures,
		Thresholds:          a.Thresholds,
		MaxRHat:             finite(d.MaxRHat),
		MinESS:              finite(d.MinESS),
		Divergences:         d.Divergences,
		DivergencesPerChain: perChain,
		Parameters:          make([]ConvergenceParameter, len(d.Parameters)),
	}
	if c.Failures == nil {
		c.Failures = []string{}
	}
	for i, p := range d.Parameters {
		c.Parameters[i] = ConvergenceParameter{Parameter: p.Parameter, RHat: finite(p.RHat), ESS: finite(p.ESS)}
	}
	return c
}

// Diagnostics converts back, mapping null statistics to NaN.
func (c Convergence) Diagnostics() posterior.Diagnostics {
	d := posterior.Diagnostics{
		MaxRHat:     orNaN(c.MaxRHat),
		MinESS:      orNaN(c.MinESS),
		Divergences: c.Divergences,
		Parameters:  make([]posterior.ParameterDiagnostic, len(c.Parameters)),
	}
	for i, p := range c.Parameters {
		d.Parameters[i] = posterior.ParameterDiagnostic{Parameter: p.Parameter, RHat: orNaN(p.RHat), ESS: orNaN(p.ESS)}
	}
	return d
}

// Assessment converts back to the verdict.
func (c Convergence) Assessment() posterior.Assessment {
	return posterior.Assessment{Passed: c.Passed, Failures: c.Failures, Thresholds: c.Thresholds}
}

// WriteConvergence writes convergence.json.
func WriteConvergence(path string, c Convergence) error {
	return writeJSON(path, c)
}

// ReadConvergence reads convergence.json.
func ReadConvergence(path string) (Convergence, error) {
	var c Convergence
	err := readJSON(path, &c)
	return c, err
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create directory for %s", path)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "report: encode %s", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "report: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "report: decode %s", path)
	}
	return nil
}
