package report

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// TraceRow is one line of the long-format trace.csv.
type TraceRow struct {
	Chain     int    `csv:"chain"`
	Draw      int    `csv:"draw"`
	Parameter string `csv:"parameter"`
	Value     Float  `csv:"value"`
}

// WriteTrace writes every retained draw as (chain, draw, parameter, value),
// chain-major then draw then parameter order.
func WriteTrace(path string, a *posterior.Archive) error {
	if err := a.Validate(); err != nil {
		return eris.Wrap(err, "report: trace")
	}
	rows := make([]TraceRow, 0, a.Chains()*a.Draws()*len(a.Parameters))
	for c, chain := range a.Values {
		for d, draw := range chain {
			for p, v := range draw {
				rows = append(rows, TraceRow{Chain: c, Draw: d, Parameter: a.Parameters[p], Value: Float(v)})
			}
		}
	}
	return writeCSV(path, rows)
}

// ReadTrace rebuilds an archive from trace.csv. Parameters keep their
// first-appearance order; groups are recovered from the bracketed names.
// Divergence counts and settings are not part of the trace.
func ReadTrace(path string) (*posterior.Archive, error) {
	var rows []TraceRow
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("report: %s has no draws", path)
	}

	index := make(map[string]int)
	var params []string
	chains, draws := 0, 0
	for _, r := range rows {
		if r.Chain < 0 || r.Draw < 0 {
			return nil, eris.Errorf("report: negative chain or draw in %s", path)
		}
		if _, ok := index[r.Parameter]; !ok {
			index[r.Parameter] = len(params)
			params = append(params, r.Parameter)
		}
		chains = max(chains, r.Chain+1)
		draws = max(draws, r.Draw+1)
	}

	values := make([][][]float64, chains)
	seen := make([][][]bool, chains)
	for c := range values {
		values[c] = make([][]float64, draws)
		seen[c] = make([][]bool, draws)
		for d := range values[c] {
			values[c][d] = make([]float64, len(params))
			seen[c][d] = make([]bool, len(params))
		}
	}
	for _, r := range rows {
		p := index[r.Parameter]
		if seen[r.Chain][r.Draw][p] {
			return nil, eris.Errorf("report: duplicate draw chain=%d draw=%d parameter=%s", r.Chain, r.Draw, r.Parameter)
		}
		seen[r.Chain][r.Draw][p] = true
		values[r.Chain][r.Draw][p] = float64(r.Value)
	}
	if n := chains * draws * len(params); n != len(rows) {
		return nil, eris.Errorf("report: %s is not rectangular: %d rows, want %d", path, len(rows), n)
	}

	return &posterior.Archive{
		Parameters: params,
		Groups:     groupsOf(params),
		Values:     values,
	}, nil
}

// groupsOf collects the sorted distinct group names of bracketed parameters.
func groupsOf(params []string) []string {
	set := make(map[string]struct{})
	for _, p := range params {
		open := strings.IndexByte(p, '[')
		if open < 0 || !strings.HasSuffix(p, "]") {
			continue
		}
		set[p[open+1:len(p)-1]] = struct{}{}
	}
	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
