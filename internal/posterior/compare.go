package posterior

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// GroupComparison contrasts one per-retailer parameter between two
// retailers.
type GroupComparison struct {
	Parameter    string   `json:"parameter"`
	A            string   `json:"a"`
	B            string   `json:"b"`
	Difference   Interval `json:"difference"`
	ProbAGreater float64  `json:"probability_a_greater"`
	ProbALess    float64  `json:"probability_a_less"`
}

// CompareGroups summarises prefix[a] - prefix[b] draw by draw. For
// elasticities ProbALess is the probability that a is more elastic.
func CompareGroups(arc *Archive, prefix, a, b string) (*GroupComparison, error) {
	da, err := arc.GroupSamples(prefix, a)
	if err != nil {
		return nil, err
	}
	db, err := arc.GroupSamples(prefix, b)
	if err != nil {
		return nil, err
	}
	diff := make([]float64, len(da))
	for i := range da {
		diff[i] = da[i] - db[i]
	}
	return &GroupComparison{
		Parameter:    prefix,
		A:            a,
		B:            b,
		Difference:   interval(diff),
		ProbAGreater: fraction(diff, func(v float64) bool { return v > 0 }),
		ProbALess:    fraction(diff, func(v float64) bool { return v < 0 }),
	}, nil
}

// ElasticityComparison relates promotional to base responsiveness.
type ElasticityComparison struct {
	Retailer        string   `json:"retailer"`
	Ratio           Interval `json:"multiplier"`
	ProbPromoLarger float64  `json:"probability_promo_more_responsive"`
}

// CompareElasticities summarises |promo| / |base| for retailer.
func CompareElasticities(arc *Archive, retailer string) (*ElasticityComparison, error) {
	base, err := arc.GroupSamples("base_elasticity", retailer)
	if err != nil {
		return nil, err
	}
	promo, err := arc.GroupSamples("promo_elasticity", retailer)
	if err != nil {
		return nil, err
	}
	ratio := make([]float64, len(base))
	larger := make([]float64, len(base))
	for i := range base {
		ratio[i] = math.Abs(promo[i]) / math.Max(math.Abs(base[i]), 1e-9)
		larger[i] = math.Abs(promo[i]) - math.Abs(base[i])
	}
	return &ElasticityComparison{
		Retailer:        retailer,
		Ratio:           interval(ratio),
		ProbPromoLarger: fraction(larger, func(v float64) bool { return v > 0 }),
	}, nil
}

// Probability returns the fraction of draws of parameter satisfying
// "value op threshold"; op is one of <, <=, >, >=.
func Probability(arc *Archive, parameter, op string, threshold float64) (float64, error) {
	var pred func(float64) bool
	switch op {
	case "<":
		pred = func(v float64) bool { return v < threshold }
	case "<=":
		pred = func(v float64) bool { return v <= threshold }
	case ">":
		pred = func(v float64) bool { return v > threshold }
	case ">=":
		pred = func(v float64) bool { return v >= threshold }
	default:
		return 0, eris.Errorf("posterior: unsupported comparison %q", op)
	}
	draws, err := arc.Samples(parameter)
	if err != nil {
		return 0, err
	}
	return fraction(draws, pred), nil
}

// ProbabilityOf evaluates a statement such as
// "base_elasticity[BJ's] < -2".
func ProbabilityOf(arc *Archive, statement string) (float64, error) {
	for _, op := range []string{"<=", ">=", "<", ">"} {
		i := strings.Index(statement, op)
		if i < 0 {
			continue
		}
		param := strings.TrimSpace(statement[:i])
		threshold, err := strconv.ParseFloat(strings.TrimSpace(statement[i+len(op):]), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "posterior: threshold in %q", statement)
		}
		return Probability(arc, param, op, threshold)
	}
	return 0, eris.Errorf("posterior: statement %q has no comparison operator", statement)
}
