// Package pipeline runs the normalization stages per retailer, assembles
// the masked panel and drives sampling and artifact writing.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/config"
	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/posterior"
	"github.com/sells-group/elasticity-cli/internal/report"
)

// Stager turns a source location into a local file path.
type Stager interface {
	Stage(ctx context.Context, key, location string) (string, error)
}

// Pipeline wires the normalization stages, the model and the sampler.
type Pipeline struct {
	cfg      *config.Config
	doc      *contract.Document
	registry *contract.Registry
	stager   Stager
	sampler  elasticity.Sampler
	priorSet string
}

// New creates a Pipeline. stager may be nil when every source is a local
// path; sampler may be nil for prep-only use.
func New(cfg *config.Config, doc *contract.Document, stager Stager, sampler elasticity.Sampler) (*Pipeline, error) {
	registry, err := doc.Registry()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		doc:      doc,
		registry: registry,
		stager:   stager,
		sampler:  sampler,
	}, nil
}

// SetPriorSet overrides the prior set named by the document and config.
func (p *Pipeline) SetPriorSet(name string) {
	p.priorSet = name
}

// PriorSetName resolves the prior set: explicit override, then the analysis
// document, then model.prior_set.
func (p *Pipeline) PriorSetName() string {
	switch {
	case p.priorSet != "":
		return p.priorSet
	case p.doc.PriorSet != "":
		return p.doc.PriorSet
	default:
		return p.cfg.Model.PriorSet
	}
}

// SampleOptions converts the sampler config.
func (p *Pipeline) SampleOptions() elasticity.SampleOptions {
	s := p.cfg.Sampler
	return elasticity.SampleOptions{
		Draws:        s.Draws,
		Tune:         s.Tune,
		Chains:       s.Chains,
		TargetAccept: s.TargetAccept,
		Seed:         s.Seed,
		MaxLeapfrog:  s.MaxLeapfrog,
	}
}

// Thresholds converts the convergence config.
func Thresholds(c config.ConvergenceConfig) posterior.Thresholds {
	return posterior.Thresholds{RHatMax: c.RHatMax, ESSMin: c.ESSMin, MaxDivergences: c.MaxDivergences}
}

// RunResult is the outcome of a full run.
type RunResult struct {
	*PrepResult
	PriorSet    string
	Archive     *posterior.Archive
	Summaries   []posterior.ParameterSummary
	Diagnostics posterior.Diagnostics
	Assessment  posterior.Assessment
	FinishedAt  time.Time
}

// Run prepares the panel, samples the hierarchical model and writes every
// artifact. A failed convergence verdict is recorded and logged, not
// returned: the caller reads it from RunResult.Assessment.
func (p *Pipeline) Run(ctx context.Context, sources []config.Source) (*RunResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	if p.sampler == nil {
		return nil, eris.New("pipeline: no sampler configured")
	}

	// Resolve everything configurable before touching data so a bad prior
	// set or sampler setting fails fast.
	name := p.PriorSetName()
	priors, err := elasticity.PriorSet(name)
	if err != nil {
		return nil, err
	}
	if priors, err = priors.WithOverrides(p.doc.Priors); err != nil {
		return nil, err
	}
	opts := p.SampleOptions()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	prep, err := p.Prepare(ctx, sources)
	if err != nil {
		return nil, err
	}

	spec, err := elasticity.Build(prep.Panel, priors)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: sampling",
		zap.String("run_id", prep.RunID),
		zap.String("prior_set", name),
		zap.Int("groups", len(spec.Groups)),
		zap.Int("observations", spec.Rows()),
		zap.Int("parameters", spec.Dim()),
		zap.Int("chains", opts.Chains),
		zap.Int("draws", opts.Draws),
	)

	archive, err := p.sampler.Sample(ctx, spec, opts)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: sample")
	}
	archive.Settings = opts.Settings()

	res := &RunResult{
		PrepResult:  prep,
		PriorSet:    name,
		Archive:     archive,
		Summaries:   posterior.Summarize(archive),
		Diagnostics: posterior.Diagnose(archive),
	}
	res.Assessment, err = posterior.Verdict(res.Diagnostics, Thresholds(p.cfg.Convergence))
	if posterior.IsConvergenceWarning(err) {
		log.Warn("pipeline: convergence criteria not met", zap.Strings("failures", res.Assessment.Failures))
	}

	if err := p.writeArtifacts(res); err != nil {
		return nil, err
	}
	log.Info("pipeline: run complete",
		zap.String("run_id", prep.RunID),
		zap.Bool("converged", res.Assessment.Passed),
		zap.Float64("max_r_hat", res.Diagnostics.MaxRHat),
		zap.Float64("min_ess_bulk", res.Diagnostics.MinESS),
		zap.Int("divergences", res.Diagnostics.Divergences),
	)
	return res, nil
}

func (p *Pipeline) writeArtifacts(res *RunResult) error {
	dir := p.cfg.Output.Dir
	at := func(name string) string { return filepath.Join(dir, name) }

	if err := report.WriteSummary(at(report.SummaryFile), res.Summaries, res.Diagnostics); err != nil {
		return err
	}
	if err := report.WriteTrace(at(report.TraceFile), res.Archive); err != nil {
		return err
	}
	conv := report.NewConvergence(res.Diagnostics, res.Assessment, res.Archive.Divergences)
	if err := report.WriteConvergence(at(report.ConvergenceFile), conv); err != nil {
		return err
	}
	rows := res.Rows()
	if err := report.WriteModelSummary(at(report.ModelSummaryFile), report.ModelSummary{
		RunID:       res.RunID,
		PriorSet:    res.PriorSet,
		Rows:        rows,
		Settings:    res.Archive.Settings,
		Assessment:  res.Assessment,
		Diagnostics: res.Diagnostics,
		Summaries:   res.Summaries,
	}); err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts,
		report.SummaryFile, report.TraceFile, report.ConvergenceFile, report.ModelSummaryFile, report.ManifestFile)

	res.FinishedAt = time.Now().UTC()
	converged := res.Assessment.Passed
	settings := res.Archive.Settings
	return report.WriteManifest(at(report.ManifestFile), report.Manifest{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		PriorSet:   res.PriorSet,
		Sources:    manifestSources(res.Retailers),
		Rows:       rows,
		Settings:   &settings,
		Converged:  &converged,
		Artifacts:  res.Artifacts,
	})
}

// WritePrepManifest records a prep-only run.
func (p *Pipeline) WritePrepManifest(prep *PrepResult) error {
	prep.Artifacts = append(prep.Artifacts, report.ManifestFile)
	return report.WriteManifest(filepath.Join(p.cfg.Output.Dir, report.ManifestFile), report.Manifest{
		RunID:      prep.RunID,
		StartedAt:  prep.StartedAt,
		FinishedAt: time.Now().UTC(),
		PriorSet:   p.PriorSetName(),
		Sources:    manifestSources(prep.Retailers),
		Rows:       prep.Rows(),
		Artifacts:  prep.Artifacts,
	})
}

func manifestSources(retailers []RetailerSummary) []report.ManifestSource {
	out := make([]report.ManifestSource, len(retailers))
	for i, r := range retailers {
		out[i] = report.ManifestSource{Retailer: r.Retailer, Location: r.Location, Staged: r.Staged}
	}
	return out
}
