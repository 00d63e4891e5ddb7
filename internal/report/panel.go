package report

import (
	"time"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// PanelRow is one line of prepared_data.csv.
type PanelRow struct {
	Date               Date   `csv:"date"`
	Retailer           string `csv:"retailer"`
	Volume             Float  `csv:"volume"`
	AvgPrice           Float  `csv:"avg_price"`
	BasePrice          Float  `csv:"base_price"`
	PromoDepth         Float  `csv:"promo_depth"`
	CompetitorPrice    Float  `csv:"competitor_price"`
	CompetitorVolume   Float  `csv:"competitor_volume"`
	Spring             Flag   `csv:"spring"`
	Summer             Flag   `csv:"summer"`
	Fall               Flag   `csv:"fall"`
	WeekIndex          int    `csv:"week_index"`
	HasPromo           Flag   `csv:"has_promo"`
	HasCompetitor      Flag   `csv:"has_competitor"`
	LogVolume          Float  `csv:"log_volume"`
	LogBasePrice       Float  `csv:"log_base_price"`
	LogCompetitorPrice Float  `csv:"log_competitor_price"`
}

// WritePanel writes records in their given order, which the assembler
// already sorted by (date, retailer).
func WritePanel(path string, records []model.WeeklyPanelRecord) error {
	rows := make([]PanelRow, len(records))
	for i, r := range records {
		rows[i] = PanelRow{
			Date:               Date(r.Date),
			Retailer:           r.Retailer,
			Volume:             Float(r.Volume),
			AvgPrice:           Float(r.AvgPrice),
			BasePrice:          Float(r.BasePrice),
			PromoDepth:         Float(r.PromoDepth),
			CompetitorPrice:    Float(r.CompetitorPrice),
			CompetitorVolume:   Float(r.CompetitorVolume),
			Spring:             Flag(r.Spring),
			Summer:             Flag(r.Summer),
			Fall:               Flag(r.Fall),
			WeekIndex:          r.WeekIndex,
			HasPromo:           Flag(r.HasPromo),
			HasCompetitor:      Flag(r.HasCompetitor),
			LogVolume:          Float(r.LogVolume),
			LogBasePrice:       Float(r.LogBasePrice),
			LogCompetitorPrice: Float(r.LogCompetitorPrice),
		}
	}
	return writeCSV(path, rows)
}

// ReadPanel reads a prepared_data.csv back into records.
func ReadPanel(path string) ([]model.WeeklyPanelRecord, error) {
	var rows []PanelRow
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	out := make([]model.WeeklyPanelRecord, len(rows))
	for i, r := range rows {
		out[i] = model.WeeklyPanelRecord{
			Date:               time.Time(r.Date),
			Retailer:           r.Retailer,
			Volume:             float64(r.Volume),
			AvgPrice:           float64(r.AvgPrice),
			BasePrice:          float64(r.BasePrice),
			PromoDepth:         float64(r.PromoDepth),
			CompetitorPrice:    float64(r.CompetitorPrice),
			CompetitorVolume:   float64(r.CompetitorVolume),
			Spring:             bool(r.Spring),
			Summer:             bool(r.Summer),
			Fall:               bool(r.Fall),
			WeekIndex:          r.WeekIndex,
			HasPromo:           bool(r.HasPromo),
			HasCompetitor:      bool(r.HasCompetitor),
			LogVolume:          float64(r.LogVolume),
			LogBasePrice:       float64(r.LogBasePrice),
			LogCompetitorPrice: float64(r.LogCompetitorPrice),
		}
	}
	return out, nil
}
