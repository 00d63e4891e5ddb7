// Package panel aggregates resolved rows into one weekly record per
// retailer and derives the promotional, seasonal, trend and log features.
package panel

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// ErrTooFewRecords is returned when the assembled panel is below the
// configured minimum size.
var ErrTooFewRecords = eris.New("panel: too few records")

// Options controls feature derivation.
type Options struct {
	Origin  time.Time // week_index origin, shared by every retailer
	ClipMin float64   // lower promo depth bound, e.g. -0.80
	ClipMax float64   // upper promo depth bound, e.g. 0.50
	MinRows int
}

type key struct {
	retailer string
	date     time.Time
}

type accumulator struct {
	volume     float64
	avgSum     float64
	baseSum    float64
	targetN    int
	compPrice  float64
	compVolume float64
	compN      int
}

// Assemble groups rows by (retailer, week) and returns records sorted by
// (date, retailer). Weeks without any target row are dropped. Availability
// flags are left false; the mask stage sets them.
func Assemble(rows []model.ResolvedRow, opts Options) ([]model.WeeklyPanelRecord, error) {
	if opts.ClipMin > opts.ClipMax {
		return nil, eris.Errorf("panel: clip bounds inverted (%v > %v)", opts.ClipMin, opts.ClipMax)
	}

	groups := make(map[key]*accumulator)
	var order []key
	for _, r := range rows {
		k := key{retailer: r.Retailer, date: r.Date}
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
			order = append(order, k)
		}
		switch r.Role {
		case model.RoleTarget:
			acc.volume += r.Volume
			acc.avgSum += r.AvgPrice
			acc.baseSum += r.BasePrice
			acc.targetN++
		case model.RoleCompetitor:
			acc.compPrice += r.AvgPrice
			acc.compVolume += r.Volume
			acc.compN++
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if !order[i].date.Equal(order[j].date) {
			return order[i].date.Before(order[j].date)
		}
		return order[i].retailer < order[j].retailer
	})

	records := make([]model.WeeklyPanelRecord, 0, len(order))
	dropped := make(map[string]int)
	for _, k := range order {
		acc := groups[k]
		if acc.targetN == 0 {
			dropped[k.retailer]++
			continue
		}
		records = append(records, build(k, acc, opts))
	}

	log := zap.L().With(zap.String("component", "panel"))
	for retailer, n := range dropped {
		log.Info("dropped weeks without target rows", zap.String("retailer", retailer), zap.Int("dropped", n))
	}

	if len(records) < opts.MinRows {
		return nil, eris.Wrapf(ErrTooFewRecords, "%d records, need at least %d", len(records), opts.MinRows)
	}
	log.Info("assembled panel", zap.Int("rows", len(records)))
	return records, nil
}

func build(k key, acc *accumulator, opts Options) model.WeeklyPanelRecord {
	n := float64(acc.targetN)
	avg := acc.avgSum / n
	base := acc.baseSum / n

	rec := model.WeeklyPanelRecord{
		Date:         k.date,
		Retailer:     k.retailer,
		Volume:       acc.volume,
		AvgPrice:     avg,
		BasePrice:    base,
		PromoDepth:   clip(avg/base-1, opts.ClipMin, opts.ClipMax),
		WeekIndex:    WeekIndex(k.date, opts.Origin),
		LogVolume:    math.Log(acc.volume),
		LogBasePrice: math.Log(base),
	}
	rec.Spring, rec.Summer, rec.Fall = Seasons(k.date.Month())

	if acc.compN > 0 {
		rec.CompetitorPrice = acc.compPrice / float64(acc.compN)
		rec.CompetitorVolume = acc.compVolume
		rec.LogCompetitorPrice = math.Log(rec.CompetitorPrice)
	}
	return rec
}

// WeekIndex is floor(days since origin / 7).
func WeekIndex(date, origin time.Time) int {
	days := int(math.Floor(date.Sub(origin).Hours() / 24))
	w := days / 7
	if days%7 != 0 && days < 0 {
		w--
	}
	return w
}

// Seasons maps a month to the spring/summer/fall indicators. Winter months
// set none of them.
func Seasons(m time.Month) (spring, summer, fall bool) {
	switch m {
	case time.March, time.April, time.May:
		return true, false, false
	case time.June, time.July, time.August:
		return false, true, false
	case time.September, time.October, time.November:
		return false, false, true
	default:
		return false, false, false
	}
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
