package api

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/posterior"
	"github.com/sells-group/elasticity-cli/internal/report"
)

// Artifacts is the in-memory view of one output directory. Any artifact
// may be missing; the endpoints that need it answer 404.
type Artifacts struct {
	Dir         string
	Panel       []model.WeeklyPanelRecord
	Archive     *posterior.Archive
	Summaries   []posterior.ParameterSummary
	Convergence *report.Convergence
	Manifest    *report.Manifest
}

// LoadArtifacts reads every artifact present under dir.
func LoadArtifacts(dir string) (*Artifacts, error) {
	a := &Artifacts{Dir: dir}
	found := 0

	load := func(name string, fn func(path string) error) error {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		found++
		return fn(path)
	}

	if err := load(report.PreparedDataFile, func(path string) (err error) {
		a.Panel, err = report.ReadPanel(path)
		return err
	}); err != nil {
		return nil, err
	}
	if err := load(report.TraceFile, func(path string) (err error) {
		a.Archive, err = report.ReadTrace(path)
		return err
	}); err != nil {
		return nil, err
	}
	if err := load(report.ConvergenceFile, func(path string) error {
		c, err := report.ReadConvergence(path)
		a.Convergence = &c
		return err
	}); err != nil {
		return nil, err
	}
	if err := load(report.ManifestFile, func(path string) error {
		m, err := report.ReadManifest(path)
		a.Manifest = &m
		return err
	}); err != nil {
		return nil, err
	}

	if found == 0 {
		return nil, eris.Errorf("api: no artifacts found in %s", dir)
	}
	if a.Archive != nil {
		if a.Convergence != nil {
			a.Archive.Divergences = a.Convergence.DivergencesPerChain
		}
		if a.Manifest != nil && a.Manifest.Settings != nil {
			a.Archive.Settings = *a.Manifest.Settings
		}
		a.Summaries = posterior.Summarize(a.Archive)
	}
	return a, nil
}

// RetailerInfo describes one retailer in the panel.
type RetailerInfo struct {
	Retailer      string `json:"retailer"`
	Rows          int    `json:"rows"`
	HasPromo      bool   `json:"has_promo"`
	HasCompetitor bool   `json:"has_competitor"`
	Modeled       bool   `json:"modeled"`
}

// Retailers lists the retailers known from the panel and the trace, sorted.
func (a *Artifacts) Retailers() []RetailerInfo {
	byName := make(map[string]*RetailerInfo)
	get := func(name string) *RetailerInfo {
		if r, ok := byName[name]; ok {
			return r
		}
		r := &RetailerInfo{Retailer: name}
		byName[name] = r
		return r
	}
	for _, rec := range a.Panel {
		r := get(rec.Retailer)
		r.Rows++
		r.HasPromo = rec.HasPromo
		r.HasCompetitor = rec.HasCompetitor
	}
	if a.Archive != nil {
		for _, g := range a.Archive.Groups {
			get(g).Modeled = true
		}
	}

	out := make([]RetailerInfo, 0, len(byName))
	for _, r := range byName {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Retailer < out[j].Retailer })
	return out
}
