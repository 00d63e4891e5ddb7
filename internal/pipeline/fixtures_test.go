package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/elasticity-cli/internal/config"
	"github.com/sells-group/elasticity-cli/internal/contract"
)

const testDocument = `
week_origin: "2023-01-01"
min_panel_rows: 30
retailers:
  "BJ's": {has_promo: true, has_competitor: true}
  "Sam's Club": {has_promo: true, has_competitor: false}
volume_factors:
  "Sam's Club": 2.0
retailer_data_contracts:
  "BJ's":
    skip_rows: 2
    product_column: Product
    target: sparkling ice
    competitor: private label
    date: {column: Time, prefix: "Week Ending ", format: "%m-%d-%y"}
    avg_price: {formula: "Dollar Sales / Unit Sales"}
    base_price: {formula: "Base Dollar Sales / Base Unit Sales"}
    volume: {column: Volume Sales, unit_column: Unit Sales}
  "Sam's Club":
    product_column: Item
    target: sparkling ice
    date: {column: Week, format: "%Y-%m-%d"}
    avg_price: {formula: "Dollar Sales / Unit Sales"}
    base_price: {column: Base Price}
    volume: {column: Volume Sales, unit_column: Unit Sales}
`

const fixtureWeeks = 20

var firstWeek = time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)

func parseDocument(t *testing.T, text string) *contract.Document {
	t.Helper()
	doc, err := contract.ParseDocument(strings.NewReader(text))
	require.NoError(t, err)
	return doc
}

// writeBJs writes a banner-prefixed extract with target, competitor and
// unrelated rows for every week.
func writeBJs(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Circana extract\nGeography: BJ's Total US\n")
	b.WriteString("Product,Time,Dollar Sales,Unit Sales,Base Dollar Sales,Base Unit Sales,Volume Sales\n")
	for w := 0; w < fixtureWeeks; w++ {
		week := firstWeek.AddDate(0, 0, 7*w)
		label := "Week Ending " + week.Format("01-02-06")
		price := 4.0 + 0.25*float64(w%4)
		units := 1000.0 - 80*float64(w%4)
		fmt.Fprintf(&b, "Sparkling Ice 17oz 12pk,%s,%.2f,%.0f,%.2f,%.0f,%.1f\n",
			label, price*units, units, 4.75*units, units, 1.5*units)
		fmt.Fprintf(&b, "Private Label Sparkling Water,%s,%.2f,%.0f,%.2f,%.0f,%.1f\n",
			label, 3.0*600, 600.0, 3.0*600, 600.0, 900.0)
		fmt.Fprintf(&b, "Other Brand Seltzer,%s,100,50,100,50,75\n", label)
	}
	return writeFile(t, dir, "bjs.csv", b.String())
}

// writeSams writes an extract without a volume column; volume is derived
// from unit sales through the configured factor.
func writeSams(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Item\tWeek\tDollar Sales\tUnit Sales\tBase Price\n")
	for w := 0; w < fixtureWeeks; w++ {
		week := firstWeek.AddDate(0, 0, 7*w)
		price := 3.5 + 0.2*float64(w%5)
		units := 2000.0 - 150*float64(w%5)
		fmt.Fprintf(&b, "SPARKLING ICE VARIETY\t%s\t%.2f\t%.0f\t4.30\n", week.Format("2006-01-02"), price*units, units)
	}
	return writeFile(t, dir, "sams.tsv", b.String())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(out string) *config.Config {
	return &config.Config{
		Data:        config.DataConfig{MaxConcurrentRetailers: 2},
		Output:      config.OutputConfig{Dir: out},
		Model:       config.ModelConfig{PriorSet: "default"},
		Sampler:     config.SamplerConfig{Draws: 500, Tune: 0, Chains: 4, TargetAccept: 0.95, Seed: 42, MaxLeapfrog: 16},
		Convergence: config.ConvergenceConfig{RHatMax: 1.05, ESSMin: 100, MaxDivergences: 0},
	}
}

func fixtureSources(t *testing.T) []config.Source {
	t.Helper()
	dir := t.TempDir()
	return []config.Source{
		{Retailer: "Sam's Club", Path: writeSams(t, dir)},
		{Retailer: "BJ's", Path: writeBJs(t, dir)},
	}
}
