package ingest

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/resolve"
)

// Tolerances of the club extract reconciliation checks.
const (
	DollarTolerance = 0.50
	UnitTolerance   = 1.0
	PriceTolerance  = 0.02
)

// reconciliation is one named identity between extract columns. diff
// returns the absolute discrepancy of a row, or false when the row cannot
// be checked.
type reconciliation struct {
	name          string
	columns       []string
	tolerance     float64
	informational bool
	diff          func(v map[string]float64) (float64, bool)
}

var integritySets = map[string][]reconciliation{
	"crx_v2": {
		{
			name:      "dollar sales = gross dollars + refund dollars",
			columns:   []string{"Dollar Sales", "Gross Dollars", "Refund Dollars"},
			tolerance: DollarTolerance,
			diff: func(v map[string]float64) (float64, bool) {
				return math.Abs(v["Dollar Sales"] - (v["Gross Dollars"] + v["Refund Dollars"])), true
			},
		},
		{
			name:      "unit sales = gross units + refund units",
			columns:   []string{"Unit Sales", "Gross Units", "Refund Units"},
			tolerance: UnitTolerance,
			diff: func(v map[string]float64) (float64, bool) {
				return math.Abs(v["Unit Sales"] - (v["Gross Units"] + v["Refund Units"])), true
			},
		},
		{
			name:      "total discount dollars = -coupon dollars",
			columns:   []string{"Total Discount Dollars", "Coupon Dollars"},
			tolerance: DollarTolerance,
			diff: func(v map[string]float64) (float64, bool) {
				return math.Abs(v["Total Discount Dollars"] + v["Coupon Dollars"]), true
			},
		},
		{
			name:      "promoted units = -coupon units",
			columns:   []string{"Promoted Units", "Coupon Units"},
			tolerance: UnitTolerance,
			diff: func(v map[string]float64) (float64, bool) {
				return math.Abs(v["Promoted Units"] + v["Coupon Units"]), true
			},
		},
		{
			name:          "(gross dollars + coupon dollars) / gross units ~ avg net price",
			columns:       []string{"Gross Dollars", "Coupon Dollars", "Gross Units", "Avg Net Price"},
			tolerance:     PriceTolerance,
			informational: true,
			diff: func(v map[string]float64) (float64, bool) {
				if v["Gross Units"] <= 0 {
					return 0, false
				}
				alt := (v["Gross Dollars"] + v["Coupon Dollars"]) / v["Gross Units"]
				return math.Abs(v["Avg Net Price"] - alt), true
			},
		},
	},
}

// CheckResult is the outcome of one reconciliation over a table.
type CheckResult struct {
	Name          string
	Rows          int // rows with every operand present
	MaxDiff       float64
	Tolerance     float64
	Skipped       bool // operand columns absent or no checkable row
	Passed        bool
	Informational bool
}

// IntegrityReport collects the results of one check set.
type IntegrityReport struct {
	Retailer string
	Set      string
	Checks   []CheckResult
}

// Failed returns the checks that exceeded their tolerance, informational
// checks excluded.
func (r IntegrityReport) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed && !c.Skipped && !c.Informational {
			out = append(out, c)
		}
	}
	return out
}

// RunIntegrity runs the named check set over table. It never alters the
// table; results are advisory.
func RunIntegrity(set string, table *model.RawTable) (IntegrityReport, error) {
	checks, ok := integritySets[set]
	if !ok {
		return IntegrityReport{}, model.NewConfigurationError(table.Retailer, "unknown integrity check set %q", set)
	}
	report := IntegrityReport{Retailer: table.Retailer, Set: set}
	for _, rc := range checks {
		report.Checks = append(report.Checks, runCheck(rc, table))
	}
	return report, nil
}

func runCheck(rc reconciliation, table *model.RawTable) CheckResult {
	res := CheckResult{Name: rc.name, Tolerance: rc.tolerance, Informational: rc.informational}
	for _, col := range rc.columns {
		if !table.HasColumn(col) {
			res.Skipped = true
			return res
		}
	}

	vals := make(map[string]float64, len(rc.columns))
rows:
	for _, row := range table.Rows {
		for _, col := range rc.columns {
			raw, _ := row.Get(col)
			f, err := resolve.ParseNumber(raw)
			if err != nil {
				continue rows
			}
			vals[col] = f
		}
		d, ok := rc.diff(vals)
		if !ok {
			continue
		}
		res.Rows++
		res.MaxDiff = math.Max(res.MaxDiff, d)
	}
	if res.Rows == 0 {
		res.Skipped = true
		return res
	}
	res.Passed = res.MaxDiff <= rc.tolerance
	return res
}

// Log writes one line per check: warnings for failed reconciliations, info
// otherwise.
func (r IntegrityReport) Log(log *zap.Logger) {
	passed := 0
	for _, c := range r.Checks {
		fields := []zap.Field{
			zap.String("check", c.Name),
			zap.Int("rows", c.Rows),
			zap.Float64("max_diff", c.MaxDiff),
			zap.Float64("tolerance", c.Tolerance),
		}
		switch {
		case c.Skipped:
			log.Info("integrity check skipped", fields...)
		case c.Passed:
			passed++
			log.Info("integrity check passed", fields...)
		case c.Informational:
			passed++
			log.Info("integrity check outside tolerance (informational)", fields...)
		default:
			log.Warn("integrity check failed; extract layout may have changed", fields...)
		}
	}
	log.Info("integrity checks complete", zap.String("set", r.Set), zap.Int("passed", passed), zap.Int("total", len(r.Checks)))
}
