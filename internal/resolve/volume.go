package resolve

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

// VolumeMode says where a retailer's volume comes from.
type VolumeMode int

const (
	// VolumeDirect reads the contract's volume column as is.
	VolumeDirect VolumeMode = iota
	// VolumeDerived multiplies the unit column by the configured factor.
	VolumeDerived
)

func (m VolumeMode) String() string {
	if m == VolumeDerived {
		return "derived"
	}
	return "direct"
}

// FactorSource supplies configured unit-to-volume factors by retailer name.
type FactorSource interface {
	VolumeFactor(retailer string) (float64, bool)
}

// VolumePlan is the per-retailer volume decision, made once before any row
// is resolved.
type VolumePlan struct {
	Retailer string
	Mode     VolumeMode
	Column   string
	Factor   float64
}

// PlanVolume decides how volume is obtained for table. A table without the
// contract's volume column and a retailer without a factor is a
// ConfigurationError: volume is never silently equated with units.
func PlanVolume(c contract.Contract, table *model.RawTable, factors FactorSource) (VolumePlan, error) {
	plan := VolumePlan{Retailer: table.Retailer}
	if c.Volume.Column != "" && table.HasColumn(c.Volume.Column) {
		plan.Mode = VolumeDirect
		plan.Column = c.Volume.Column
		return plan, nil
	}

	var factor float64
	var ok bool
	if factors != nil {
		factor, ok = factors.VolumeFactor(table.Retailer)
	}
	if !ok {
		missing := c.Volume.Column
		if missing == "" {
			missing = "(none configured)"
		}
		return plan, model.NewConfigurationError(table.Retailer,
			"volume column %s not found in extract and no volume_factors entry; "+
				"add the volume column to the extract and its contract, or add a volume_factors entry for this retailer",
			missing)
	}
	if !table.HasColumn(c.Volume.UnitColumn) {
		return plan, &model.SourceFormatError{
			Retailer: table.Retailer,
			Path:     table.Path,
			Column:   c.Volume.UnitColumn,
			Reason:   "unit column required to derive volume is missing",
		}
	}
	plan.Mode = VolumeDerived
	plan.Column = c.Volume.UnitColumn
	plan.Factor = factor
	return plan, nil
}

// Volume resolves the volume of row under the plan. The result is finite
// but may be zero or negative; Resolve drops zero and rejects negative.
func (p VolumePlan) Volume(row model.RawRow) (float64, error) {
	v, err := cell(row, p.Column)
	if err != nil {
		return 0, err
	}
	if p.Mode == VolumeDerived {
		v *= p.Factor
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &cellError{column: p.Column, err: eris.New("volume is not finite")}
	}
	return v, nil
}
