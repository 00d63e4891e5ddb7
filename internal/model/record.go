// Package model holds the record types shared by the normalization pipeline
// and the error kinds every stage reports.
package model

import "time"

// Role tags a raw row as target brand, competitor brand, or discarded.
type Role int

const (
	RoleDiscard Role = iota
	RoleTarget
	RoleCompetitor
)

// String returns the lowercase role name used in logs.
func (r Role) String() string {
	switch r {
	case RoleTarget:
		return "target"
	case RoleCompetitor:
		return "competitor"
	default:
		return "discard"
	}
}

// RawRow is one source row as found in a retailer extract.
type RawRow struct {
	Retailer string
	Line     int // 1-based line in the source file, header rows included
	Values   map[string]string
}

// Get returns the trimmed value for column, and whether the column exists.
func (r RawRow) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// ClassifiedRow is a RawRow with exactly one role.
type ClassifiedRow struct {
	RawRow
	Role Role
}

// ResolvedRow carries the resolved week, prices and volume of a
// non-discarded row.
type ResolvedRow struct {
	Retailer     string
	Line         int
	Role         Role
	Date         time.Time
	AvgPrice     float64
	BasePrice    float64 // zero on competitor rows
	Volume       float64
	BaseFallback bool
}

// WeeklyPanelRecord is one normalized (retailer, week) observation.
type WeeklyPanelRecord struct {
	Date               time.Time `json:"date"`
	Retailer           string    `json:"retailer"`
	Volume             float64   `json:"volume"`
	AvgPrice           float64   `json:"avg_price"`
	BasePrice          float64   `json:"base_price"`
	PromoDepth         float64   `json:"promo_depth"`
	CompetitorPrice    float64   `json:"competitor_price"`
	CompetitorVolume   float64   `json:"competitor_volume"`
	Spring             bool      `json:"spring"`
	Summer             bool      `json:"summer"`
	Fall               bool      `json:"fall"`
	WeekIndex          int       `json:"week_index"`
	HasPromo           bool      `json:"has_promo"`
	HasCompetitor      bool      `json:"has_competitor"`
	LogVolume          float64   `json:"log_volume"`
	LogBasePrice       float64   `json:"log_base_price"`
	LogCompetitorPrice float64   `json:"log_competitor_price"`
}

// PromoTerm is the promotional depth as it enters the linear predictor.
func (r WeeklyPanelRecord) PromoTerm() float64 {
	if !r.HasPromo {
		return 0
	}
	return r.PromoDepth
}

// CompetitorTerm is the competitor log price as it enters the linear predictor.
func (r WeeklyPanelRecord) CompetitorTerm() float64 {
	if !r.HasCompetitor {
		return 0
	}
	return r.LogCompetitorPrice
}

// Season returns the name of the flagged season, or "winter" when none is set.
func (r WeeklyPanelRecord) Season() string {
	switch {
	case r.Spring:
		return "spring"
	case r.Summer:
		return "summer"
	case r.Fall:
		return "fall"
	default:
		return "winter"
	}
}

// Indicator converts a flag to the 0/1 value used in tables and design columns.
func Indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RawTable is one loaded retailer extract with the identifier column already
// renamed to its canonical name.
type RawTable struct {
	Retailer string
	Path     string
	Header   []string
	Rows     []RawRow
}

// HasColumn reports whether the table header contains column.
func (t *RawTable) HasColumn(column string) bool {
	for _, h := range t.Header {
		if h == column {
			return true
		}
	}
	return false
}
