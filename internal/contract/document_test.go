package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/elasticity-cli/internal/model"
)

const sampleDocument = `
week_origin: "2023-01-01"
min_panel_rows: 0
priors:
  base_elasticity: {mu: -1.5}
retailers:
  "BJ's": {has_promo: true, has_competitor: true}
  "Sam's Club": {has_promo: true, has_competitor: true}
  Costco: {has_promo: false, has_competitor: false}
volume_factors:
  Costco: 2.0
retailer_data_contracts:
  "BJ's":
    skip_rows: 2
    product_column: Product
    target: sparkling ice
    competitor: private label
    date: {prefix: "Week Ending ", format: "%m-%d-%y"}
    avg_price: {formula: "Dollar Sales / Unit Sales"}
    base_price: {formula: "Base Dollar Sales / Base Unit Sales"}
    volume: {column: Volume Sales}
  Costco:
    product_column: Item Description
    target: sparkling ice
    date: {column: Week, pattern: '(\d{4}-\d{2}-\d{2})', format: "%Y-%m-%d"}
    avg_price: {column: Avg Net Price}
    base_price:
      formula: Gross Dollars / Gross Units
      fallback: Avg Shelf Price
      min_denominator: 100
    integrity_checks: [crx_v2]
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), doc.Origin())
	require.NotNil(t, doc.MinPanelRows)
	assert.Equal(t, 0, *doc.MinPanelRows)
	require.NotNil(t, doc.PromoDepthClip)
	assert.InDelta(t, -0.80, doc.PromoDepthClip.Min, 1e-12)
	assert.InDelta(t, 0.50, doc.PromoDepthClip.Max, 1e-12)
	require.NotNil(t, doc.Priors["base_elasticity"].Mu)
	assert.InDelta(t, -1.5, *doc.Priors["base_elasticity"].Mu, 1e-12)
	assert.Nil(t, doc.Priors["base_elasticity"].Sigma)

	promo, comp, ok := doc.AvailabilityFor("sams club")
	require.True(t, ok)
	assert.True(t, promo)
	assert.True(t, comp)

	promo, comp, ok = doc.AvailabilityFor("COSTCO")
	require.True(t, ok)
	assert.False(t, promo)
	assert.False(t, comp)

	_, _, ok = doc.AvailabilityFor("Walmart")
	assert.False(t, ok)

	factor, ok := doc.VolumeFactor("costco")
	require.True(t, ok)
	assert.InDelta(t, 2.0, factor, 1e-12)
	_, ok = doc.VolumeFactor("BJ's")
	assert.False(t, ok)

	assert.Equal(t, []string{"BJ's", "Costco", "Sam's Club"}, doc.RetailerNames())

	reg, err := doc.Registry()
	require.NoError(t, err)
	c, err := reg.Lookup("Costco")
	require.NoError(t, err)
	assert.Equal(t, []string{"crx_v2"}, c.IntegrityChecks)
	assert.InDelta(t, 100, c.BasePrice.MinDenominator, 1e-12)
}

func TestParseDocument_Defaults(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader("retailers: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWeekOrigin, doc.WeekOrigin)
	assert.Equal(t, DefaultMinPanelRows, *doc.MinPanelRows)
	assert.InDelta(t, DefaultClipMin, doc.PromoDepthClip.Min, 1e-12)
	assert.False(t, doc.LegacyDefault)
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"unknown key", "retailer_contracts: {}\n", "field retailer_contracts not found"},
		{"bad origin", "week_origin: 01/01/2023\n", "week_origin failed datetime validation"},
		{"bad prior set", "prior_set: strong\n", "prior_set must be one of"},
		{"unknown prior family", "priors:\n  gamma: {mu: 1}\n", "must be one of"},
		{"non-positive prior sigma", "priors:\n  sigma: {sigma: 0}\n", "must be greater than 0"},
		{"missing availability flag", "retailers:\n  Costco: {has_promo: true}\n", "has_competitor is required"},
		{"non-positive factor", "volume_factors:\n  Costco: 0\n", "must be greater than 0"},
		{"inverted clip", "promo_depth_clip: {min: 0.2, max: 0.5}\n", "must be less than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, model.IsConfigurationError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o644))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Len(t, doc.Contracts, 2)

	_, err = LoadDocument(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open analysis document")
}

func TestDocument_AliasedRetailerLookups(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(sampleDocument + `    aliases: [Costco Wholesale Club, CWC]
`))
	require.NoError(t, err)

	promo, comp, ok := doc.AvailabilityFor("Sams")
	require.True(t, ok)
	assert.True(t, promo)
	assert.True(t, comp)

	promo, comp, ok = doc.AvailabilityFor("CWC")
	require.True(t, ok)
	assert.False(t, promo)
	assert.False(t, comp)

	f, ok := doc.VolumeFactor("Costco Wholesale Club")
	require.True(t, ok)
	assert.InDelta(t, 2.0, f, 1e-12)

	registry, err := doc.Registry()
	require.NoError(t, err)
	c, err := registry.Lookup("cwc")
	require.NoError(t, err)
	assert.Equal(t, "Costco", c.Name)
}
