// Package contract describes how each retailer's extract is parsed and
// priced, and resolves retailer names to those descriptions.
package contract

import (
	"regexp"
	"strings"
)

// Contract is the immutable parsing and pricing description of one retailer.
type Contract struct {
	Name            string     `yaml:"-"`
	Aliases         []string   `yaml:"aliases" validate:"dive,required"`
	SkipRows        int        `yaml:"skip_rows" validate:"gte=0,lte=1000"`
	ProductColumn   string     `yaml:"product_column" validate:"required"`
	RenameTo        string     `yaml:"rename_to"`
	Target          string     `yaml:"target" validate:"required"`
	Competitor      string     `yaml:"competitor"`
	Date            DateRule   `yaml:"date"`
	AvgPrice        PriceRule  `yaml:"avg_price"`
	BasePrice       BaseRule   `yaml:"base_price"`
	Volume          VolumeRule `yaml:"volume"`
	IntegrityChecks []string   `yaml:"integrity_checks" validate:"dive,oneof=crx_v2"`

	pattern *regexp.Regexp
}

// DateRule extracts the week-ending date from a raw text column.
type DateRule struct {
	Column  string `yaml:"column"`
	Prefix  string `yaml:"prefix" validate:"excluded_with=Pattern"`
	Pattern string `yaml:"pattern" validate:"capture_group"`
	Format  string `yaml:"format" validate:"required"`
}

// PriceRule is either a two-column formula or a direct column.
type PriceRule struct {
	Formula string `yaml:"formula" validate:"required_without=Column,excluded_with=Column,formula"`
	Column  string `yaml:"column"`
}

// BaseRule is a PriceRule with an optional thin-denominator fallback.
type BaseRule struct {
	PriceRule      `yaml:",inline"`
	Fallback       string  `yaml:"fallback"`
	MinDenominator float64 `yaml:"min_denominator" validate:"gte=0"`
}

// VolumeRule names the direct volume column and the unit-sales column used
// when volume is derived with a configured factor.
type VolumeRule struct {
	Column     string `yaml:"column"`
	UnitColumn string `yaml:"unit_column"`
}

// Canonical column defaults applied when a contract leaves them blank.
const (
	DefaultIdentifier = "Product"
	DefaultDateColumn = "Time"
	DefaultUnitColumn = "Unit Sales"
)

// IdentifierColumn is the column name the classifier reads after loading.
func (c Contract) IdentifierColumn() string {
	if c.RenameTo != "" {
		return c.RenameTo
	}
	return c.ProductColumn
}

// HasCompetitor reports whether the contract defines competitor rows at all.
func (c Contract) HasCompetitor() bool {
	return strings.TrimSpace(c.Competitor) != ""
}

// DatePattern returns the compiled date pattern, or nil for prefix rules.
func (c Contract) DatePattern() *regexp.Regexp {
	return c.pattern
}

// Operands splits a formula into its numerator and denominator columns.
// ok is false for direct-column rules.
func (p PriceRule) Operands() (numerator, denominator string, ok bool) {
	if p.Formula == "" {
		return "", "", false
	}
	parts := strings.Split(p.Formula, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	numerator = strings.TrimSpace(parts[0])
	denominator = strings.TrimSpace(parts[1])
	if numerator == "" || denominator == "" {
		return "", "", false
	}
	return numerator, denominator, true
}

// Columns lists the raw columns the rule reads.
func (p PriceRule) Columns() []string {
	if num, den, ok := p.Operands(); ok {
		return []string{num, den}
	}
	if p.Column != "" {
		return []string{p.Column}
	}
	return nil
}

// Columns lists the raw columns the base rule reads, fallback included.
func (b BaseRule) Columns() []string {
	cols := b.PriceRule.Columns()
	if b.Fallback != "" {
		cols = append(cols, b.Fallback)
	}
	return cols
}

// RequiredColumns lists the columns later stages read from a loaded table.
// Volume columns are excluded: which one is needed depends on the factor
// configuration, and the volume resolver checks that separately.
func (c Contract) RequiredColumns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				cols = append(cols, n)
			}
		}
	}
	add(c.IdentifierColumn(), c.Date.Column)
	add(c.AvgPrice.Columns()...)
	add(c.BasePrice.Columns()...)
	return cols
}

// withDefaults fills blank column names with the canonical defaults.
func (c Contract) withDefaults(name string) Contract {
	c.Name = name
	if c.RenameTo == "" {
		c.RenameTo = DefaultIdentifier
	}
	if c.Date.Column == "" {
		c.Date.Column = DefaultDateColumn
	}
	if c.Volume.UnitColumn == "" {
		c.Volume.UnitColumn = DefaultUnitColumn
	}
	return c
}

// Legacy returns the contract applied to unknown retailers when the
// analysis document enables the legacy default.
func Legacy(name string) Contract {
	c := Contract{
		SkipRows:      2,
		ProductColumn: "Product",
		Target:        "sparkling ice",
		Competitor:    "private label",
		Date: DateRule{
			Column: "Time",
			Prefix: "Week Ending ",
			Format: "%m-%d-%y",
		},
		AvgPrice:  PriceRule{Formula: "Dollar Sales / Unit Sales"},
		BasePrice: BaseRule{PriceRule: PriceRule{Formula: "Base Dollar Sales / Base Unit Sales"}},
		Volume:    VolumeRule{Column: "Volume Sales", UnitColumn: "Unit Sales"},
	}
	return c.withDefaults(name)
}
