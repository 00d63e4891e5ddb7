package resolve

import (
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

// Result is the outcome of resolving one retailer's classified rows.
type Result struct {
	Rows      []model.ResolvedRow
	Dropped   int // rows with zero volume
	Fallbacks int // target rows priced with the base fallback column
}

// Resolve resolves the date, prices and volume of every non-discarded row.
// Any unparseable date, negative or non-finite volume, or non-positive price
// is a SourceFormatError naming the row and column; the whole run stops on
// the first one. Zero-volume rows are no-sale weeks and are dropped.
func Resolve(c contract.Contract, table *model.RawTable, rows []model.ClassifiedRow, plan VolumePlan) (*Result, error) {
	res := &Result{Rows: make([]model.ResolvedRow, 0, len(rows))}
	pattern := c.DatePattern()

	for _, row := range rows {
		if row.Role == model.RoleDiscard {
			continue
		}
		sourceErr := func(column string, err error) error {
			var ce *cellError
			if errors.As(err, &ce) {
				column = ce.column
				err = ce.err
			}
			return &model.SourceFormatError{
				Retailer: table.Retailer,
				Path:     table.Path,
				Line:     row.Line,
				Column:   column,
				Reason:   err.Error(),
			}
		}

		raw, _ := row.Get(c.Date.Column)
		date, err := ParseDate(c.Date, pattern, raw)
		if err != nil {
			return nil, sourceErr(c.Date.Column, err)
		}

		volume, err := plan.Volume(row.RawRow)
		if err != nil {
			return nil, sourceErr(plan.Column, err)
		}
		if volume < 0 {
			return nil, sourceErr(plan.Column, eris.Errorf("volume %v is negative", volume))
		}
		if volume == 0 {
			res.Dropped++
			continue
		}

		avg, err := Price(c.AvgPrice, row.RawRow)
		if err != nil {
			return nil, sourceErr(ruleLabel("avg_price", c.AvgPrice), err)
		}
		if !positiveFinite(avg) {
			return nil, sourceErr(ruleLabel("avg_price", c.AvgPrice),
				eris.Errorf("average price %v is not finite and positive", avg))
		}

		out := model.ResolvedRow{
			Retailer: table.Retailer,
			Line:     row.Line,
			Role:     row.Role,
			Date:     date,
			AvgPrice: avg,
			Volume:   volume,
		}

		if row.Role == model.RoleTarget {
			base, fallback, err := BasePrice(c.BasePrice, row.RawRow)
			if err != nil {
				return nil, sourceErr(ruleLabel("base_price", c.BasePrice.PriceRule), err)
			}
			if !positiveFinite(base) {
				return nil, sourceErr(ruleLabel("base_price", c.BasePrice.PriceRule),
					eris.Errorf("base price %v is not finite and positive", base))
			}
			out.BasePrice = base
			out.BaseFallback = fallback
			if fallback {
				res.Fallbacks++
			}
		}
		res.Rows = append(res.Rows, out)
	}

	log := zap.L().With(zap.String("component", "resolve"), zap.String("retailer", table.Retailer))
	if res.Fallbacks > 0 {
		log.Info("base price fallback used", zap.Int("rows", res.Fallbacks), zap.String("column", c.BasePrice.Fallback))
	}
	if res.Dropped > 0 {
		log.Info("dropped rows with zero volume", zap.Int("dropped", res.Dropped))
	}
	return res, nil
}

func ruleLabel(field string, rule contract.PriceRule) string {
	if rule.Formula != "" {
		return field + " (" + rule.Formula + ")"
	}
	return rule.Column
}
