package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/elasticity-cli/internal/contract"
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Validate the analysis document and list retailer contracts",
	RunE: func(_ *cobra.Command, _ []string) error {
		doc, err := contract.LoadDocument(cfg.Data.AnalysisPath)
		if err != nil {
			return err
		}
		registry, err := doc.Registry()
		if err != nil {
			return err
		}
		formatContracts(os.Stdout, doc, registry)
		return nil
	},
}

func formatContracts(out io.Writer, doc *contract.Document, registry *contract.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RETAILER\tSKIP\tPRODUCT\tTARGET\tCOMPETITOR\tDATE\tAVG_PRICE\tBASE_PRICE\tVOLUME")
	_, _ = fmt.Fprintln(w, "--------\t----\t-------\t------\t----------\t----\t---------\t----------\t------")
	for _, name := range registry.Names() {
		c, err := registry.Lookup(name)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name,
			c.SkipRows,
			c.ProductColumn,
			c.Target,
			orDash(c.Competitor),
			dateRule(c.Date),
			priceRule(c.AvgPrice),
			priceRule(c.BasePrice.PriceRule),
			volumeRule(doc, c),
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RETAILER\tHAS_PROMO\tHAS_COMPETITOR")
	_, _ = fmt.Fprintln(w, "--------\t---------\t--------------")
	for _, name := range doc.RetailerNames() {
		promo, comp, _ := doc.AvailabilityFor(name)
		_, _ = fmt.Fprintf(w, "%s\t%t\t%t\n", name, promo, comp)
	}
	_ = w.Flush()

	if doc.LegacyDefault {
		_, _ = fmt.Fprintln(out, "\nlegacy_default: unknown retailers fall back to the legacy contract")
	}
}

func dateRule(d contract.DateRule) string {
	if d.Pattern != "" {
		return fmt.Sprintf("%s =~ %s (%s)", d.Column, d.Pattern, d.Format)
	}
	return fmt.Sprintf("%s after %q (%s)", d.Column, d.Prefix, d.Format)
}

func priceRule(p contract.PriceRule) string {
	if p.Formula != "" {
		return p.Formula
	}
	return orDash(p.Column)
}

func volumeRule(doc *contract.Document, c contract.Contract) string {
	if factor, ok := doc.VolumeFactor(c.Name); ok {
		return fmt.Sprintf("%s x %g", c.Volume.UnitColumn, factor)
	}
	return orDash(c.Volume.Column)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(contractsCmd)
}
