package posterior

import (
	"math"
)

// Scenario kinds.
const (
	ScenarioPrice    = "price"
	ScenarioDiscount = "discount"
)

// ScenarioResult is the posterior distribution of a pricing scenario.
type ScenarioResult struct {
	Retailer       string   `json:"retailer"`
	Kind           string   `json:"kind"`
	Parameter      string   `json:"parameter"`
	PriceChangePct float64  `json:"price_change_pct"`
	DiscountPct    float64  `json:"discount_depth_pct,omitempty"`
	VolumePct      Interval `json:"volume_change_pct"`
	RevenuePct     Interval `json:"revenue_change_pct"`
	ProbRevenueUp  float64  `json:"probability_revenue_up"`
}

// PriceChange evaluates a permanent base price change of pct percent for
// retailer using its base elasticity draws.
func PriceChange(a *Archive, retailer string, pct float64) (*ScenarioResult, error) {
	draws, err := a.GroupSamples("base_elasticity", retailer)
	if err != nil {
		return nil, err
	}
	res := scenario(draws, pct)
	res.Retailer = retailer
	res.Kind = ScenarioPrice
	res.Parameter = "base_elasticity"
	return res, nil
}

// DiscountDepth evaluates a temporary discount of depth percent for
// retailer using its promo elasticity draws. The sign of depth is ignored.
func DiscountDepth(a *Archive, retailer string, depth float64) (*ScenarioResult, error) {
	draws, err := a.GroupSamples("promo_elasticity", retailer)
	if err != nil {
		return nil, err
	}
	res := scenario(draws, -math.Abs(depth))
	res.Retailer = retailer
	res.Kind = ScenarioDiscount
	res.Parameter = "promo_elasticity"
	res.DiscountPct = math.Abs(depth)
	return res, nil
}

// scenario applies volume% = coefficient * price% and
// revenue% = ((1 + volume%/100)(1 + price%/100) - 1) * 100 per draw.
func scenario(coef []float64, pricePct float64) *ScenarioResult {
	volume := make([]float64, len(coef))
	revenue := make([]float64, len(coef))
	for i, c := range coef {
		volume[i] = c * pricePct
		revenue[i] = ((1+volume[i]/100)*(1+pricePct/100) - 1) * 100
	}
	return &ScenarioResult{
		PriceChangePct: pricePct,
		VolumePct:      interval(volume),
		RevenuePct:     interval(revenue),
		ProbRevenueUp:  fraction(revenue, func(v float64) bool { return v > 0 }),
	}
}
