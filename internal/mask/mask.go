// Package mask attaches the per-retailer availability flags to panel
// records and zeroes the features a retailer does not have.
package mask

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// Flags looks up the static availability of a retailer by name.
type Flags interface {
	AvailabilityFor(retailer string) (hasPromo, hasCompetitor bool, ok bool)
}

// Apply returns a masked copy of records. A retailer without an
// availability entry is a ConfigurationError; a retailer declared to have
// competitor data with a week lacking it is a SourceFormatError.
func Apply(records []model.WeeklyPanelRecord, flags Flags) ([]model.WeeklyPanelRecord, error) {
	out := make([]model.WeeklyPanelRecord, len(records))
	masked := make(map[string]bool)
	for i, rec := range records {
		hasPromo, hasCompetitor, ok := flags.AvailabilityFor(rec.Retailer)
		if !ok {
			return nil, model.NewConfigurationError(rec.Retailer,
				"no availability entry under retailers; set has_promo and has_competitor explicitly")
		}
		if hasCompetitor && rec.CompetitorPrice <= 0 {
			return nil, &model.SourceFormatError{
				Retailer: rec.Retailer,
				Reason:   "has_competitor is set but week ending " + rec.Date.Format("2006-01-02") + " has no competitor rows",
			}
		}

		rec.HasPromo = hasPromo
		rec.HasCompetitor = hasCompetitor
		if !hasPromo {
			rec.PromoDepth = 0
		}
		if !hasCompetitor {
			rec.CompetitorPrice = 0
			rec.CompetitorVolume = 0
			rec.LogCompetitorPrice = 0
		}
		if !hasPromo || !hasCompetitor {
			masked[rec.Retailer] = true
		}
		out[i] = rec
	}

	for retailer := range masked {
		hasPromo, hasCompetitor, _ := flags.AvailabilityFor(retailer)
		zap.L().Info("masked unavailable features",
			zap.String("component", "mask"),
			zap.String("retailer", retailer),
			zap.Bool("has_promo", hasPromo),
			zap.Bool("has_competitor", hasCompetitor),
		)
	}
	return out, nil
}

// Verify re-checks the record invariants the model relies on.
func Verify(records []model.WeeklyPanelRecord) error {
	for _, r := range records {
		where := func(msg string) error {
			return eris.Errorf("mask: retailer %q week %s: %s", r.Retailer, r.Date.Format("2006-01-02"), msg)
		}
		switch {
		case !(r.Volume > 0):
			return where("volume must be positive")
		case !(r.BasePrice > 0):
			return where("base price must be positive")
		case model.Indicator(r.Spring)+model.Indicator(r.Summer)+model.Indicator(r.Fall) > 1:
			return where("more than one seasonal indicator set")
		case !r.HasPromo && r.PromoDepth != 0:
			return where("promo depth must be zero when has_promo is false")
		case !r.HasCompetitor && (r.CompetitorPrice != 0 || r.CompetitorVolume != 0 || r.LogCompetitorPrice != 0):
			return where("competitor features must be zero when has_competitor is false")
		}
		for _, v := range []float64{r.LogVolume, r.LogBasePrice, r.LogCompetitorPrice, r.PromoDepth} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return where("non-finite feature")
			}
		}
	}
	return nil
}
