package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var prepOutput string

var prepCmd = &cobra.Command{
	Use:   "prep",
	Short: "Normalize retailer extracts into prepared_data.csv",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("output") {
			cfg.Output.Dir = prepOutput
		}
		sources, err := resolveSources(cfg, sourceFlags)
		if err != nil {
			return err
		}
		cfg.Data.Sources = sources
		if err := cfg.Validate("prep"); err != nil {
			return err
		}

		p, err := initPipeline(cfg, nil)
		if err != nil {
			return err
		}
		res, err := p.Prepare(cmd.Context(), sources)
		if err != nil {
			return err
		}
		if err := p.WritePrepManifest(res); err != nil {
			return err
		}

		for _, r := range res.Retailers {
			fmt.Fprintf(os.Stdout, "%-24s volume=%-8s rows=%-6d target=%-6d competitor=%-6d dropped=%d\n",
				r.Retailer, r.Volume, r.Rows, r.Target, r.Competitor, r.Dropped)
		}
		fmt.Fprintf(os.Stdout, "%d panel records written to %s\n", len(res.Panel), cfg.Output.Dir)
		return nil
	},
}

func init() {
	prepCmd.Flags().StringArrayVar(&sourceFlags, "source", nil, "retailer=path extract (repeatable, overrides data.sources)")
	prepCmd.Flags().StringVar(&prepOutput, "output", "", "output directory (default from config)")
	rootCmd.AddCommand(prepCmd)
}
