package report

import (
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// SummaryRow is one line of results_summary.csv.
type SummaryRow struct {
	Parameter string `csv:"parameter"`
	Mean      Float  `csv:"mean"`
	Median    Float  `csv:"median"`
	Std       Float  `csv:"std"`
	Lower     Float  `csv:"ci_lower"`
	Upper     Float  `csv:"ci_upper"`
	RHat      Float  `csv:"r_hat"`
	ESS       Float  `csv:"ess_bulk"`
}

// SummaryRows joins marginal summaries with their diagnostics by parameter
// name, in summary order.
func SummaryRows(summaries []posterior.ParameterSummary, d posterior.Diagnostics) []SummaryRow {
	diag := make(map[string]posterior.ParameterDiagnostic, len(d.Parameters))
	for _, p := range d.Parameters {
		diag[p.Parameter] = p
	}
	rows := make([]SummaryRow, len(summaries))
	for i, s := range summaries {
		p := diag[s.Parameter]
		rows[i] = SummaryRow{
			Parameter: s.Parameter,
			Mean:      Float(s.Mean),
			Median:    Float(s.Median),
			Std:       Float(s.Std),
			Lower:     Float(s.Lower),
			Upper:     Float(s.Upper),
			RHat:      Float(p.RHat),
			ESS:       Float(p.ESS),
		}
	}
	return rows
}

// WriteSummary writes results_summary.csv.
func WriteSummary(path string, summaries []posterior.ParameterSummary, d posterior.Diagnostics) error {
	return writeCSV(path, SummaryRows(summaries, d))
}

// ReadSummary reads results_summary.csv.
func ReadSummary(path string) ([]SummaryRow, error) {
	var rows []SummaryRow
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
