package resolve

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

// cellError names the column that failed to resolve.
type cellError struct {
	column string
	err    error
}

func (e *cellError) Error() string { return e.column + ": " + e.err.Error() }
func (e *cellError) Unwrap() error { return e.err }

func cell(row model.RawRow, column string) (float64, error) {
	raw, ok := row.Get(column)
	if !ok {
		return 0, &cellError{column: column, err: eris.New("column missing")}
	}
	v, err := ParseNumber(raw)
	if err != nil {
		return 0, &cellError{column: column, err: err}
	}
	return v, nil
}

// Price resolves a two-mode price rule. Formula rules divide the numerator
// column by the denominator column; direct rules read one column as is.
func Price(rule contract.PriceRule, row model.RawRow) (float64, error) {
	num, den, ok := rule.Operands()
	if !ok {
		return cell(row, rule.Column)
	}
	n, err := cell(row, num)
	if err != nil {
		return 0, err
	}
	d, err := cell(row, den)
	if err != nil {
		return 0, err
	}
	return n / d, nil
}

// BasePrice resolves the base price, substituting the fallback column when
// the formula denominator is below the rule's threshold. fallback reports
// whether the substitution happened.
func BasePrice(rule contract.BaseRule, row model.RawRow) (value float64, fallback bool, err error) {
	if _, den, ok := rule.Operands(); ok && rule.Fallback != "" && rule.MinDenominator > 0 {
		d, err := cell(row, den)
		if err != nil {
			return 0, false, err
		}
		if d < rule.MinDenominator {
			v, err := cell(row, rule.Fallback)
			return v, true, err
		}
	}
	v, err := Price(rule.PriceRule, row)
	return v, false, err
}
