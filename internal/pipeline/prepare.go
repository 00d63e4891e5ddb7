package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/elasticity-cli/internal/classify"
	"github.com/sells-group/elasticity-cli/internal/config"
	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/ingest"
	"github.com/sells-group/elasticity-cli/internal/mask"
	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/panel"
	"github.com/sells-group/elasticity-cli/internal/report"
	"github.com/sells-group/elasticity-cli/internal/resolve"
)

// RetailerSummary describes how one retailer extract was normalized.
type RetailerSummary struct {
	Retailer   string `json:"retailer"`
	Location   string `json:"location"`
	Staged     string `json:"staged"`
	Volume     string `json:"volume_mode"`
	Rows       int    `json:"rows"`
	Target     int    `json:"target_rows"`
	Competitor int    `json:"competitor_rows"`
	Discarded  int    `json:"discarded_rows"`
	Dropped    int    `json:"dropped_rows"`
	Fallbacks  int    `json:"base_price_fallbacks"`
}

// PrepResult is the outcome of Prepare.
type PrepResult struct {
	RunID     string
	StartedAt time.Time
	Retailers []RetailerSummary
	Panel     []model.WeeklyPanelRecord
	Artifacts []string
}

// Rows counts panel records per retailer.
func (r *PrepResult) Rows() map[string]int {
	return report.RowsPerRetailer(r.Panel)
}

type retailerOutput struct {
	summary RetailerSummary
	rows    []model.ResolvedRow
}

// Prepare normalizes every source into the masked weekly panel and writes
// prepared_data.csv. Any configuration or source problem aborts the run.
func (p *Pipeline) Prepare(ctx context.Context, sources []config.Source) (*PrepResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	if len(sources) == 0 {
		return nil, model.NewConfigurationError("", "no data sources configured; set data.sources or pass --source retailer=path")
	}
	res := &PrepResult{RunID: report.NewRunID(), StartedAt: time.Now().UTC()}

	outputs := make([]retailerOutput, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Data.MaxConcurrentRetailers))
	for i, src := range sources {
		g.Go(func() error {
			out, err := p.prepareRetailer(gCtx, src)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Join in retailer order so the panel never depends on scheduling.
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].summary.Retailer < outputs[j].summary.Retailer })
	var rows []model.ResolvedRow
	seen := make(map[string]string, len(outputs))
	for _, out := range outputs {
		if prev, dup := seen[out.summary.Retailer]; dup {
			return nil, model.NewConfigurationError(out.summary.Retailer,
				"sources %s and %s resolve to the same retailer", prev, out.summary.Location)
		}
		seen[out.summary.Retailer] = out.summary.Location
		res.Retailers = append(res.Retailers, out.summary)
		rows = append(rows, out.rows...)
	}

	assembled, err := panel.Assemble(rows, p.panelOptions())
	if err != nil {
		return nil, err
	}
	masked, err := mask.Apply(assembled, p.doc)
	if err != nil {
		return nil, err
	}
	if err := mask.Verify(masked); err != nil {
		return nil, err
	}
	res.Panel = masked

	path := filepath.Join(p.cfg.Output.Dir, report.PreparedDataFile)
	if err := report.WritePanel(path, masked); err != nil {
		return nil, err
	}
	res.Artifacts = append(res.Artifacts, report.PreparedDataFile)

	log.Info("pipeline: panel prepared",
		zap.String("run_id", res.RunID),
		zap.Int("retailers", len(res.Retailers)),
		zap.Int("records", len(masked)),
		zap.String("path", path),
	)
	return res, nil
}

func (p *Pipeline) panelOptions() panel.Options {
	opts := panel.Options{
		Origin:  p.doc.Origin(),
		ClipMin: contract.DefaultClipMin,
		ClipMax: contract.DefaultClipMax,
		MinRows: contract.DefaultMinPanelRows,
	}
	if p.doc.PromoDepthClip != nil {
		opts.ClipMin = p.doc.PromoDepthClip.Min
		opts.ClipMax = p.doc.PromoDepthClip.Max
	}
	if p.doc.MinPanelRows != nil {
		opts.MinRows = *p.doc.MinPanelRows
	}
	return opts
}

// prepareRetailer runs staging, contract lookup, load, volume planning,
// classification and resolution for one source.
func (p *Pipeline) prepareRetailer(ctx context.Context, src config.Source) (retailerOutput, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("retailer", src.Retailer))

	c, err := p.registry.Lookup(src.Retailer)
	if err != nil {
		return retailerOutput{}, err
	}

	staged := src.Path
	if p.stager != nil {
		staged, err = p.stager.Stage(ctx, c.Name, src.Path)
		if err != nil {
			return retailerOutput{}, eris.Wrapf(err, "pipeline: stage %s", src.Retailer)
		}
	}

	phases := make(map[string]int64)
	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		phases[name] = time.Since(start).Milliseconds()
		return err
	}

	var table *model.RawTable
	if err := track("load", func() (err error) {
		table, err = ingest.Load(ctx, c, staged)
		return err
	}); err != nil {
		return retailerOutput{}, err
	}

	var plan resolve.VolumePlan
	if err := track("plan_volume", func() (err error) {
		plan, err = resolve.PlanVolume(c, table, p.doc)
		return err
	}); err != nil {
		return retailerOutput{}, err
	}

	var classified *classify.Result
	_ = track("classify", func() error {
		classified = classify.Classify(c, table)
		return nil
	})

	var resolved *resolve.Result
	if err := track("resolve", func() (err error) {
		resolved, err = resolve.Resolve(c, table, classified.Rows, plan)
		return err
	}); err != nil {
		return retailerOutput{}, err
	}

	summary := RetailerSummary{
		Retailer:   c.Name,
		Location:   src.Path,
		Staged:     staged,
		Volume:     plan.Mode.String(),
		Rows:       len(table.Rows),
		Target:     classified.Target,
		Competitor: classified.Competitor,
		Discarded:  classified.Discard,
		Dropped:    resolved.Dropped,
		Fallbacks:  resolved.Fallbacks,
	}
	log.Info("pipeline: retailer normalized",
		zap.String("volume_mode", summary.Volume),
		zap.Int("rows", summary.Rows),
		zap.Int("target", summary.Target),
		zap.Int("competitor", summary.Competitor),
		zap.Int("dropped", summary.Dropped),
		zap.Any("phase_ms", phases),
	)
	return retailerOutput{summary: summary, rows: resolved.Rows}, nil
}
