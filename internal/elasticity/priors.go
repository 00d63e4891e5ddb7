package elasticity

import (
	"sort"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/model"
)

// Normal is a normal prior.
type Normal struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// HalfNormal is a half-normal prior on a positive scale parameter.
type HalfNormal struct {
	Sigma float64 `json:"sigma"`
}

// Priors holds one prior per parameter family.
type Priors struct {
	Name                string     `json:"name"`
	BaseElasticity      Normal     `json:"base_elasticity"`
	PromoElasticity     Normal     `json:"promo_elasticity"`
	Cross               Normal     `json:"elasticity_cross"`
	Spring              Normal     `json:"beta_spring"`
	Summer              Normal     `json:"beta_summer"`
	Fall                Normal     `json:"beta_fall"`
	Time                Normal     `json:"beta_time"`
	Intercept           Normal     `json:"intercept"`
	Sigma               HalfNormal `json:"sigma"`
	SigmaGroup          HalfNormal `json:"sigma_group"`
	SigmaGroupIntercept HalfNormal `json:"sigma_group_intercept"`
}

var priorSets = map[string]Priors{
	"default": {
		BaseElasticity:      Normal{-2.0, 0.5},
		PromoElasticity:     Normal{-4.0, 1.0},
		Cross:               Normal{0.15, 0.15},
		Spring:              Normal{0, 0.2},
		Summer:              Normal{0, 0.2},
		Fall:                Normal{0, 0.2},
		Time:                Normal{0, 0.01},
		Intercept:           Normal{10.0, 2.0},
		Sigma:               HalfNormal{0.5},
		SigmaGroup:          HalfNormal{0.3},
		SigmaGroupIntercept: HalfNormal{1.0},
	},
	"informative": {
		BaseElasticity:      Normal{-1.8, 0.3},
		PromoElasticity:     Normal{-3.5, 0.5},
		Cross:               Normal{0.07, 0.1},
		Spring:              Normal{0.12, 0.05},
		Summer:              Normal{0, 0.1},
		Fall:                Normal{0.07, 0.05},
		Time:                Normal{-0.001, 0.005},
		Intercept:           Normal{17.5, 1.0},
		Sigma:               HalfNormal{0.3},
		SigmaGroup:          HalfNormal{0.2},
		SigmaGroupIntercept: HalfNormal{1.0},
	},
	"vague": {
		BaseElasticity:      Normal{0, 5.0},
		PromoElasticity:     Normal{0, 5.0},
		Cross:               Normal{0, 2.0},
		Spring:              Normal{0, 1.0},
		Summer:              Normal{0, 1.0},
		Fall:                Normal{0, 1.0},
		Time:                Normal{0, 0.1},
		Intercept:           Normal{0, 10.0},
		Sigma:               HalfNormal{2.0},
		SigmaGroup:          HalfNormal{1.0},
		SigmaGroupIntercept: HalfNormal{1.0},
	},
}

// PriorSetNames lists the built-in prior sets.
func PriorSetNames() []string {
	names := make([]string, 0, len(priorSets))
	for n := range priorSets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PriorSet returns the named built-in prior set.
func PriorSet(name string) (Priors, error) {
	p, ok := priorSets[name]
	if !ok {
		return Priors{}, model.NewConfigurationError("", "unknown prior set %q (known: %v)", name, PriorSetNames())
	}
	p.Name = name
	return p, nil
}

// WithOverrides returns p with per-family overrides applied. The seasonal
// family overrides all three seasonal coefficients; scale families accept
// only sigma.
func (p Priors) WithOverrides(overrides map[string]contract.PriorOverride) (Priors, error) {
	families := make([]string, 0, len(overrides))
	for f := range overrides {
		families = append(families, f)
	}
	sort.Strings(families)

	for _, family := range families {
		o := overrides[family]
		normals := p.normalFamily(family)
		if normals != nil {
			for _, n := range normals {
				if o.Mu != nil {
					n.Mu = *o.Mu
				}
				if o.Sigma != nil {
					n.Sigma = *o.Sigma
				}
			}
			continue
		}
		half := p.halfNormalFamily(family)
		if half == nil {
			return p, model.NewConfigurationError("", "unknown prior family %q", family)
		}
		if o.Mu != nil {
			return p, model.NewConfigurationError("", "prior family %q is half-normal and takes no mu", family)
		}
		if o.Sigma != nil {
			half.Sigma = *o.Sigma
		}
	}
	return p, nil
}

func (p *Priors) normalFamily(family string) []*Normal {
	switch family {
	case "base_elasticity":
		return []*Normal{&p.BaseElasticity}
	case "promo_elasticity":
		return []*Normal{&p.PromoElasticity}
	case "elasticity_cross":
		return []*Normal{&p.Cross}
	case "seasonal":
		return []*Normal{&p.Spring, &p.Summer, &p.Fall}
	case "beta_time":
		return []*Normal{&p.Time}
	case "intercept":
		return []*Normal{&p.Intercept}
	}
	return nil
}

func (p *Priors) halfNormalFamily(family string) *HalfNormal {
	switch family {
	case "sigma":
		return &p.Sigma
	case "sigma_group":
		return &p.SigmaGroup
	case "sigma_group_intercept":
		return &p.SigmaGroupIntercept
	}
	return nil
}

// logDensity is the normal log density up to its constant, and its
// derivative in x.
func (n Normal) logDensity(x float64) (lp, grad float64) {
	d := x - n.Mu
	v := n.Sigma * n.Sigma
	return -d * d / (2 * v), -d / v
}

// logDensityLog evaluates the half-normal density of s = exp(u) on the
// unconstrained scale u, Jacobian included, and its derivative in u.
func (h HalfNormal) logDensityLog(u float64, s float64) (lp, grad float64) {
	v := h.Sigma * h.Sigma
	return -s*s/(2*v) + u, -s*s/v + 1
}
