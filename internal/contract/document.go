package contract

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// Document defaults, applied only when the key is absent.
const (
	DefaultWeekOrigin   = "2023-01-01"
	DefaultMinPanelRows = 30
	DefaultClipMin      = -0.80
	DefaultClipMax      = 0.50
)

// Document is the analysis document: contracts, availability flags, volume
// factors, panel options and prior overrides.
type Document struct {
	LegacyDefault  bool                     `yaml:"legacy_default"`
	WeekOrigin     string                   `yaml:"week_origin" validate:"datetime=2006-01-02"`
	MinPanelRows   *int                     `yaml:"min_panel_rows" validate:"omitempty,gte=0"`
	PromoDepthClip *ClipBounds              `yaml:"promo_depth_clip"`
	PriorSet       string                   `yaml:"prior_set" validate:"omitempty,oneof=default informative vague"`
	Priors         map[string]PriorOverride `yaml:"priors" validate:"dive,keys,oneof=base_elasticity promo_elasticity elasticity_cross seasonal beta_time intercept sigma sigma_group sigma_group_intercept,endkeys"`
	Retailers      map[string]Availability  `yaml:"retailers" validate:"dive"`
	VolumeFactors  map[string]float64       `yaml:"volume_factors" validate:"dive,gt=0"`
	Contracts      map[string]Contract      `yaml:"retailer_data_contracts"`
}

// ClipBounds bounds promotional depth.
type ClipBounds struct {
	Min float64 `yaml:"min" validate:"lt=0"`
	Max float64 `yaml:"max" validate:"gt=0"`
}

// PriorOverride replaces the mean and/or spread of one prior family.
type PriorOverride struct {
	Mu    *float64 `yaml:"mu"`
	Sigma *float64 `yaml:"sigma" validate:"omitempty,gt=0"`
}

// Availability holds the static per-retailer feature flags. Both keys are
// required so a forgotten flag never silently masks a feature.
type Availability struct {
	HasPromo      *bool `yaml:"has_promo" validate:"required"`
	HasCompetitor *bool `yaml:"has_competitor" validate:"required"`
}

// LoadDocument reads and validates the analysis document at path.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "contract: open analysis document %s", path)
	}
	defer f.Close() //nolint:errcheck

	doc, err := ParseDocument(f)
	if err != nil {
		return nil, eris.Wrapf(err, "contract: load %s", path)
	}
	return doc, nil
}

// ParseDocument decodes an analysis document, rejecting unknown keys, and
// applies the documented defaults.
func ParseDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "contract: read analysis document")
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &model.ConfigurationError{Reason: "parse analysis document: " + err.Error()}
	}

	doc.applyDefaults()
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.WeekOrigin == "" {
		d.WeekOrigin = DefaultWeekOrigin
	}
	if d.MinPanelRows == nil {
		n := DefaultMinPanelRows
		d.MinPanelRows = &n
	}
	if d.PromoDepthClip == nil {
		d.PromoDepthClip = &ClipBounds{Min: DefaultClipMin, Max: DefaultClipMax}
	}
}

func (d *Document) validate() error {
	err := contractValidator().Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &model.ConfigurationError{Reason: formatErrors(verrs)}
	}
	return &model.ConfigurationError{Reason: "validate analysis document: " + err.Error()}
}

// Registry builds the contract registry described by the document.
func (d *Document) Registry() (*Registry, error) {
	return NewRegistry(d.Contracts, d.LegacyDefault)
}

// Origin returns the shared week-index origin.
func (d *Document) Origin() time.Time {
	t, _ := time.Parse("2006-01-02", d.WeekOrigin) // validated on load
	return t
}

// AvailabilityFor returns the flags of retailer, matched by exact then
// normalized name.
func (d *Document) AvailabilityFor(retailer string) (hasPromo, hasCompetitor bool, ok bool) {
	a, found := lookupNormalized(d.Retailers, retailer, d.aliasFamilies()...)
	if !found || a.HasPromo == nil || a.HasCompetitor == nil {
		return false, false, false
	}
	return *a.HasPromo, *a.HasCompetitor, true
}

// VolumeFactor returns the configured unit-to-volume factor of retailer.
func (d *Document) VolumeFactor(retailer string) (float64, bool) {
	return lookupNormalized(d.VolumeFactors, retailer, d.aliasFamilies()...)
}

// aliasFamilies returns, per contract with aliases, its normalized name
// followed by its normalized aliases.
func (d *Document) aliasFamilies() [][]string {
	var out [][]string
	for name, c := range d.Contracts {
		if len(c.Aliases) == 0 {
			continue
		}
		family := []string{NormalizeName(name)}
		for _, a := range c.Aliases {
			family = append(family, NormalizeName(a))
		}
		out = append(out, family)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// RetailerNames returns the retailers with availability flags, sorted.
func (d *Document) RetailerNames() []string {
	names := make([]string, 0, len(d.Retailers))
	for name := range d.Retailers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
