package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/elasticity-cli/internal/config"
	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/fetcher"
	"github.com/sells-group/elasticity-cli/internal/pipeline"
)

// sourceFlags are the repeatable --source retailer=path flags shared by
// run and prep.
var sourceFlags []string

// resolveSources returns the --source flags when any are given, otherwise
// data.sources from config.
func resolveSources(c *config.Config, flags []string) ([]config.Source, error) {
	if len(flags) == 0 {
		return c.Data.Sources, nil
	}
	out := make([]config.Source, 0, len(flags))
	for _, f := range flags {
		s, err := config.ParseSource(f)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func newStager(c *config.Config) *fetcher.Stager {
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	return fetcher.NewStager(c.Data.StageDir,
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:           timeout,
			RequestsPerSecond: c.Fetch.RequestsPerSecond,
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	)
}

// initPipeline loads the analysis document and wires the pipeline.
func initPipeline(c *config.Config, sampler elasticity.Sampler) (*pipeline.Pipeline, error) {
	doc, err := contract.LoadDocument(c.Data.AnalysisPath)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(c, doc, newStager(c), sampler)
	if err != nil {
		return nil, eris.Wrap(err, "init pipeline")
	}
	return p, nil
}
