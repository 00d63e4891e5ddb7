package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/elasticity-cli/internal/config"
	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/report"
	"github.com/sells-group/elasticity-cli/internal/sampler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPrepare(t *testing.T) {
	out := t.TempDir()
	p, err := New(testConfig(out), parseDocument(t, testDocument), nil, nil)
	require.NoError(t, err)

	res, err := p.Prepare(context.Background(), fixtureSources(t))
	require.NoError(t, err)

	require.Len(t, res.Retailers, 2)
	bjs, sams := res.Retailers[0], res.Retailers[1]
	assert.Equal(t, "BJ's", bjs.Retailer)
	assert.Equal(t, "direct", bjs.Volume)
	assert.Equal(t, fixtureWeeks, bjs.Target)
	assert.Equal(t, fixtureWeeks, bjs.Competitor)
	assert.Equal(t, fixtureWeeks, bjs.Discarded)
	assert.Equal(t, "Sam's Club", sams.Retailer)
	assert.Equal(t, "derived", sams.Volume)
	assert.Zero(t, sams.Competitor)

	assert.Equal(t, map[string]int{"BJ's": fixtureWeeks, "Sam's Club": fixtureWeeks}, res.Rows())
	assert.Len(t, res.RunID, 36)
	assert.Equal(t, []string{report.PreparedDataFile}, res.Artifacts)

	for i := 1; i < len(res.Panel); i++ {
		prev, cur := res.Panel[i-1], res.Panel[i]
		assert.True(t, prev.Date.Before(cur.Date) || (prev.Date.Equal(cur.Date) && prev.Retailer < cur.Retailer))
	}
	for _, r := range res.Panel {
		switch r.Retailer {
		case "BJ's":
			assert.True(t, r.HasCompetitor)
			assert.InDelta(t, 3.0, r.CompetitorPrice, 1e-9)
		case "Sam's Club":
			assert.False(t, r.HasCompetitor)
			assert.Zero(t, r.CompetitorPrice)
			assert.Zero(t, r.LogCompetitorPrice)
		}
	}

	panel, err := report.ReadPanel(filepath.Join(out, report.PreparedDataFile))
	require.NoError(t, err)
	assert.Len(t, panel, 2*fixtureWeeks)
}

func TestPrepare_Deterministic(t *testing.T) {
	sources := fixtureSources(t)
	read := func() []byte {
		out := t.TempDir()
		p, err := New(testConfig(out), parseDocument(t, testDocument), nil, nil)
		require.NoError(t, err)
		_, err = p.Prepare(context.Background(), sources)
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(out, report.PreparedDataFile))
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, read(), read())
}

func TestPrepare_Stager(t *testing.T) {
	dir := t.TempDir()
	bjs := writeBJs(t, dir)
	sams := writeSams(t, dir)

	st := new(mockStager)
	st.On("Stage", mock.Anything, "BJ's", "https://files.example.com/bjs.csv").Return(bjs, nil)
	st.On("Stage", mock.Anything, "Sam's Club", "ftp://files.example.com/sams.zip").Return(sams, nil)

	p, err := New(testConfig(t.TempDir()), parseDocument(t, testDocument), st, nil)
	require.NoError(t, err)
	res, err := p.Prepare(context.Background(), []config.Source{
		{Retailer: "BJ's", Path: "https://files.example.com/bjs.csv"},
		{Retailer: "sams club", Path: "ftp://files.example.com/sams.zip"},
	})
	require.NoError(t, err)
	st.AssertExpectations(t)
	assert.Equal(t, bjs, res.Retailers[0].Staged)
	assert.Equal(t, "ftp://files.example.com/sams.zip", res.Retailers[1].Location)
}

func TestPrepare_StageFailure(t *testing.T) {
	st := new(mockStager)
	st.On("Stage", mock.Anything, mock.Anything, mock.Anything).Return("", eris.New("connection refused"))

	p, err := New(testConfig(t.TempDir()), parseDocument(t, testDocument), st, nil)
	require.NoError(t, err)
	_, err = p.Prepare(context.Background(), []config.Source{{Retailer: "BJ's", Path: "https://x/bjs.csv"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPrepare_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		sources func(t *testing.T) []config.Source
		want    string
	}{
		{
			name:    "no sources",
			doc:     testDocument,
			sources: func(*testing.T) []config.Source { return nil },
			want:    "no data sources",
		},
		{
			name: "missing volume factor",
			doc:  strings.Replace(testDocument, "volume_factors:\n  \"Sam's Club\": 2.0\n", "", 1),
			sources: fixtureSources,
			want:    "no volume_factors entry",
		},
		{
			name:    "missing availability",
			doc:     strings.Replace(testDocument, "  \"Sam's Club\": {has_promo: true, has_competitor: false}\n", "", 1),
			sources: fixtureSources,
			want:    "no availability entry",
		},
		{
			name: "unknown retailer",
			doc:  testDocument,
			sources: func(t *testing.T) []config.Source {
				return []config.Source{{Retailer: "Walmart", Path: writeSams(t, t.TempDir())}}
			},
			want: "legacy_default is disabled",
		},
		{
			name: "duplicate retailer",
			doc:  testDocument,
			sources: func(t *testing.T) []config.Source {
				dir := t.TempDir()
				return []config.Source{
					{Retailer: "BJ's", Path: writeBJs(t, dir)},
					{Retailer: "bjs", Path: writeBJs(t, t.TempDir())},
				}
			},
			want: "resolve to the same retailer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(testConfig(t.TempDir()), parseDocument(t, tt.doc), nil, nil)
			require.NoError(t, err)
			_, err = p.Prepare(context.Background(), tt.sources(t))
			require.Error(t, err)
			assert.True(t, model.IsConfigurationError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrepare_TooFewRows(t *testing.T) {
	doc := strings.Replace(testDocument, "min_panel_rows: 30", "min_panel_rows: 100", 1)
	p, err := New(testConfig(t.TempDir()), parseDocument(t, doc), nil, nil)
	require.NoError(t, err)
	_, err = p.Prepare(context.Background(), fixtureSources(t))
	require.Error(t, err)
}

func TestRun_Stub(t *testing.T) {
	out := t.TempDir()
	stub := &sampler.Stub{Centers: map[string]float64{
		"base_elasticity[BJ's]":        -1.8,
		"base_elasticity[Sam's Club]":  -1.2,
		"promo_elasticity[BJ's]":       -3.0,
		"promo_elasticity[Sam's Club]": -2.5,
	}}
	p, err := New(testConfig(out), parseDocument(t, testDocument), nil, stub)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), fixtureSources(t))
	require.NoError(t, err)

	assert.Equal(t, "default", res.PriorSet)
	assert.True(t, res.Assessment.Passed, "failures: %v", res.Assessment.Failures)
	assert.Equal(t, 500, res.Archive.Settings.Draws)
	assert.Equal(t, []string{"BJ's", "Sam's Club"}, res.Archive.Groups)

	for _, name := range []string{
		report.PreparedDataFile, report.SummaryFile, report.TraceFile,
		report.ConvergenceFile, report.ModelSummaryFile, report.ManifestFile,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	m, err := report.ReadManifest(filepath.Join(out, report.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	require.NotNil(t, m.Converged)
	assert.True(t, *m.Converged)
	assert.Len(t, m.Sources, 2)
	assert.Equal(t, res.Artifacts, m.Artifacts)

	arc, err := report.ReadTrace(filepath.Join(out, report.TraceFile))
	require.NoError(t, err)
	s, err := arc.GroupSamples("base_elasticity", "BJ's")
	require.NoError(t, err)
	assert.Len(t, s, 4*500)
}

func TestRun_ConvergenceFailureIsNotFatal(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(out)
	cfg.Convergence.ESSMin = 1e9
	p, err := New(cfg, parseDocument(t, testDocument), nil, &sampler.Stub{Divergences: 3})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), fixtureSources(t))
	require.NoError(t, err)
	assert.False(t, res.Assessment.Passed)
	assert.Len(t, res.Assessment.Failures, 2)

	conv, err := report.ReadConvergence(filepath.Join(out, report.ConvergenceFile))
	require.NoError(t, err)
	assert.False(t, conv.Passed)
	assert.Equal(t, 3, conv.Divergences)
}

func TestRun_VerdictFlipLeavesSummaryUnchanged(t *testing.T) {
	run := func(essMin float64) (*RunResult, []byte) {
		out := t.TempDir()
		cfg := testConfig(out)
		cfg.Convergence.RHatMax = 2
		cfg.Convergence.ESSMin = essMin
		p, err := New(cfg, parseDocument(t, testDocument), nil, &sampler.Stub{})
		require.NoError(t, err)
		res, err := p.Run(context.Background(), fixtureSources(t))
		require.NoError(t, err)
		summary, err := os.ReadFile(filepath.Join(out, report.SummaryFile))
		require.NoError(t, err)
		return res, summary
	}

	pass, passCSV := run(1)
	fail, failCSV := run(1e9)
	require.True(t, pass.Assessment.Passed)
	require.False(t, fail.Assessment.Passed)

	assert.Equal(t, pass.Summaries, fail.Summaries)
	assert.Equal(t, pass.Diagnostics, fail.Diagnostics)
	assert.Equal(t, string(passCSV), string(failCSV))
}

func TestRun_SamplerReceivesConfiguredOptions(t *testing.T) {
	ms := new(mockSampler)
	ms.On("Sample", mock.Anything, mock.AnythingOfType("*elasticity.Spec"), elasticity.SampleOptions{
		Draws: 500, Tune: 0, Chains: 4, TargetAccept: 0.95, Seed: 42, MaxLeapfrog: 16,
	}).Return(nil, eris.New("chain 2 failed"))

	p, err := New(testConfig(t.TempDir()), parseDocument(t, testDocument), nil, ms)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), fixtureSources(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: sample")
	ms.AssertExpectations(t)
}

func TestRun_FailsBeforeSampling(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		mutate func(*Pipeline)
	}{
		{
			name: "missing volume factor",
			doc:  strings.Replace(testDocument, "volume_factors:\n  \"Sam's Club\": 2.0\n", "", 1),
		},
		{
			name:   "unknown prior set",
			doc:    testDocument,
			mutate: func(p *Pipeline) { p.SetPriorSet("flat") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := new(mockSampler)
			p, err := New(testConfig(t.TempDir()), parseDocument(t, tt.doc), nil, ms)
			require.NoError(t, err)
			if tt.mutate != nil {
				tt.mutate(p)
			}
			_, err = p.Run(context.Background(), fixtureSources(t))
			require.Error(t, err)
			assert.True(t, model.IsConfigurationError(err))
			ms.AssertNotCalled(t, "Sample", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPriorSetName(t *testing.T) {
	doc := parseDocument(t, testDocument)
	p, err := New(testConfig(t.TempDir()), doc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", p.PriorSetName())

	doc.PriorSet = "informative"
	assert.Equal(t, "informative", p.PriorSetName())

	p.SetPriorSet("vague")
	assert.Equal(t, "vague", p.PriorSetName())
}

func TestWritePrepManifest(t *testing.T) {
	out := t.TempDir()
	p, err := New(testConfig(out), parseDocument(t, testDocument), nil, nil)
	require.NoError(t, err)
	prep, err := p.Prepare(context.Background(), fixtureSources(t))
	require.NoError(t, err)
	require.NoError(t, p.WritePrepManifest(prep))

	m, err := report.ReadManifest(filepath.Join(out, report.ManifestFile))
	require.NoError(t, err)
	assert.Nil(t, m.Converged)
	assert.Equal(t, []string{report.PreparedDataFile, report.ManifestFile}, m.Artifacts)
}
