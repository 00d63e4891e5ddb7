package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// ModelSummary is the input of the human-readable model_summary.txt.
type ModelSummary struct {
	RunID       string
	PriorSet    string
	Rows        map[string]int
	Settings    posterior.Settings
	Assessment  posterior.Assessment
	Diagnostics posterior.Diagnostics
	Summaries   []posterior.ParameterSummary
}

// WriteModelSummary renders s to path.
func WriteModelSummary(path string, s ModelSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck
	if err := RenderModelSummary(f, s); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return f.Close()
}

// RenderModelSummary writes the fixed-width text summary to w.
func RenderModelSummary(w io.Writer, s ModelSummary) error {
	var b strings.Builder

	b.WriteString("Hierarchical price elasticity model\n")
	b.WriteString(strings.Repeat("=", 72) + "\n")
	fmt.Fprintf(&b, "run id:     %s\n", s.RunID)
	fmt.Fprintf(&b, "prior set:  %s\n", s.PriorSet)
	fmt.Fprintf(&b, "sampling:   %d chains x %d draws (%d tune), target accept %.2f, seed %d\n",
		s.Settings.Chains, s.Settings.Draws, s.Settings.Tune, s.Settings.TargetAccept, s.Settings.Seed)

	retailers := make([]string, 0, len(s.Rows))
	total := 0
	for r, n := range s.Rows {
		retailers = append(retailers, r)
		total += n
	}
	sort.Strings(retailers)
	fmt.Fprintf(&b, "\nobservations: %d\n", total)
	for _, r := range retailers {
		fmt.Fprintf(&b, "  %-24s %6d\n", r, s.Rows[r])
	}

	b.WriteString("\nconvergence: ")
	if s.Assessment.Passed {
		b.WriteString("PASSED\n")
	} else {
		b.WriteString("FAILED\n")
		for _, f := range s.Assessment.Failures {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	fmt.Fprintf(&b, "  max r_hat %.4f, min ess_bulk %.1f, divergences %d\n",
		s.Diagnostics.MaxRHat, s.Diagnostics.MinESS, s.Diagnostics.Divergences)

	diag := make(map[string]posterior.ParameterDiagnostic, len(s.Diagnostics.Parameters))
	for _, p := range s.Diagnostics.Parameters {
		diag[p.Parameter] = p
	}

	fmt.Fprintf(&b, "\n%-40s %9s %9s %9s %9s %9s %7s %8s\n",
		"parameter", "mean", "median", "std", "ci_lower", "ci_upper", "r_hat", "ess_bulk")
	b.WriteString(strings.Repeat("-", 108) + "\n")
	for _, p := range s.Summaries {
		d := diag[p.Parameter]
		fmt.Fprintf(&b, "%-40s %9.4f %9.4f %9.4f %9.4f %9.4f %7.3f %8.0f\n",
			p.Parameter, p.Mean, p.Median, p.Std, p.Lower, p.Upper, d.RHat, d.ESS)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
