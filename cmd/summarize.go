package main

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/pipeline"
	"github.com/sells-group/elasticity-cli/internal/posterior"
	"github.com/sells-group/elasticity-cli/internal/report"
)

var summarizeDir string

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Recompute the posterior summary and convergence report from trace.csv",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := outputDir(cmd, summarizeDir)
		arc, err := loadArchive(dir)
		if err != nil {
			return err
		}

		summaries := posterior.Summarize(arc)
		diag := posterior.Diagnose(arc)
		assessment, err := posterior.Verdict(diag, pipeline.Thresholds(cfg.Convergence))
		if posterior.IsConvergenceWarning(err) {
			zap.L().Warn("summarize: convergence criteria not met", zap.Strings("failures", assessment.Failures))
		}

		if err := report.WriteSummary(filepath.Join(dir, report.SummaryFile), summaries, diag); err != nil {
			return err
		}
		conv := report.NewConvergence(diag, assessment, arc.Divergences)
		if err := report.WriteConvergence(filepath.Join(dir, report.ConvergenceFile), conv); err != nil {
			return err
		}

		summary := report.ModelSummary{
			Settings:    arc.Settings,
			Assessment:  assessment,
			Diagnostics: diag,
			Summaries:   summaries,
		}
		if m, err := report.ReadManifest(filepath.Join(dir, report.ManifestFile)); err == nil {
			summary.RunID = m.RunID
			summary.PriorSet = m.PriorSet
			summary.Rows = m.Rows
		}
		if err := report.WriteModelSummary(filepath.Join(dir, report.ModelSummaryFile), summary); err != nil {
			return err
		}
		return report.RenderModelSummary(os.Stdout, summary)
	},
}

// outputDir prefers an explicit --dir flag over output.dir.
func outputDir(cmd *cobra.Command, flagValue string) string {
	if cmd.Flags().Changed("dir") {
		return flagValue
	}
	return cfg.Output.Dir
}

// loadArchive reads trace.csv and restores divergence counts and settings
// from convergence.json and manifest.json when present.
func loadArchive(dir string) (*posterior.Archive, error) {
	arc, err := report.ReadTrace(filepath.Join(dir, report.TraceFile))
	if err != nil {
		return nil, err
	}
	conv, err := report.ReadConvergence(filepath.Join(dir, report.ConvergenceFile))
	switch {
	case err == nil && len(conv.DivergencesPerChain) == arc.Chains():
		arc.Divergences = conv.DivergencesPerChain
	case err != nil && !eris.Is(err, fs.ErrNotExist):
		zap.L().Warn("summarize: ignoring unreadable convergence report", zap.Error(err))
	}
	if m, err := report.ReadManifest(filepath.Join(dir, report.ManifestFile)); err == nil && m.Settings != nil {
		arc.Settings = *m.Settings
	}
	return arc, nil
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeDir, "dir", "", "artifact directory containing trace.csv (default output.dir)")
	rootCmd.AddCommand(summarizeCmd)
}
