// Package classify tags each raw row as target brand, competitor brand or
// discard using the retailer contract's substring rules.
package classify

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

// Result holds the classified rows and per-role counts.
type Result struct {
	Rows       []model.ClassifiedRow
	Target     int
	Competitor int
	Discard    int
}

// Classify assigns exactly one role per row. The competitor rule is tried
// first, then the target rule; anything else is discarded. Matching is a
// case-insensitive substring test on the canonical identifier column.
func Classify(c contract.Contract, table *model.RawTable) *Result {
	fold := cases.Fold()
	target := fold.String(strings.TrimSpace(c.Target))
	competitor := ""
	if c.HasCompetitor() {
		competitor = fold.String(strings.TrimSpace(c.Competitor))
	}
	column := c.IdentifierColumn()

	res := &Result{Rows: make([]model.ClassifiedRow, 0, len(table.Rows))}
	for _, row := range table.Rows {
		raw, _ := row.Get(column)
		id := fold.String(raw)

		role := model.RoleDiscard
		switch {
		case competitor != "" && strings.Contains(id, competitor):
			role = model.RoleCompetitor
			res.Competitor++
		case target != "" && strings.Contains(id, target):
			role = model.RoleTarget
			res.Target++
		default:
			res.Discard++
		}
		res.Rows = append(res.Rows, model.ClassifiedRow{RawRow: row, Role: role})
	}

	zap.L().Debug("classified rows",
		zap.String("component", "classify"),
		zap.String("retailer", table.Retailer),
		zap.Int("target", res.Target),
		zap.Int("competitor", res.Competitor),
		zap.Int("discard", res.Discard),
	)
	return res
}
