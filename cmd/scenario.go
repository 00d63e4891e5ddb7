package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/elasticity-cli/internal/posterior"
)

var (
	scenarioDir         string
	scenarioRetailer    string
	scenarioPriceChange float64
	scenarioDiscount    float64
	scenarioCompare     string
	scenarioStatement   string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Evaluate pricing scenarios and comparisons from trace.csv",
	Long: `Evaluates one question against the posterior draws in trace.csv and prints
the result as JSON.

Examples:
  elasticity-cli scenario --retailer "BJ's" --price-change 5
  elasticity-cli scenario --retailer Costco --discount 15
  elasticity-cli scenario --retailer Costco --compare "BJ's"
  elasticity-cli scenario --retailer Costco
  elasticity-cli scenario --probability "base_elasticity[BJ's] < -2"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		arc, err := loadArchive(outputDir(cmd, scenarioDir))
		if err != nil {
			return err
		}
		result, err := evaluateScenario(cmd, arc)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func evaluateScenario(cmd *cobra.Command, arc *posterior.Archive) (any, error) {
	f := cmd.Flags()
	chosen := 0
	for _, name := range []string{"price-change", "discount", "compare", "probability"} {
		if f.Changed(name) {
			chosen++
		}
	}
	if chosen > 1 {
		return nil, eris.New("scenario: choose one of --price-change, --discount, --compare, --probability")
	}

	if f.Changed("probability") {
		p, err := posterior.ProbabilityOf(arc, scenarioStatement)
		if err != nil {
			return nil, err
		}
		return map[string]any{"statement": scenarioStatement, "probability": p}, nil
	}

	retailer := strings.TrimSpace(scenarioRetailer)
	if retailer == "" {
		return nil, eris.New("scenario: --retailer is required")
	}
	switch {
	case f.Changed("price-change"):
		return posterior.PriceChange(arc, retailer, scenarioPriceChange)
	case f.Changed("discount"):
		return posterior.DiscountDepth(arc, retailer, scenarioDiscount)
	case f.Changed("compare"):
		return posterior.CompareGroups(arc, "base_elasticity", retailer, scenarioCompare)
	default:
		return posterior.CompareElasticities(arc, retailer)
	}
}

func init() {
	scenarioCmd.Flags().StringVar(&scenarioDir, "dir", "", "artifact directory containing trace.csv (default output.dir)")
	scenarioCmd.Flags().StringVar(&scenarioRetailer, "retailer", "", "retailer to evaluate")
	scenarioCmd.Flags().Float64Var(&scenarioPriceChange, "price-change", 0, "permanent base price change in percent")
	scenarioCmd.Flags().Float64Var(&scenarioDiscount, "discount", 0, "temporary discount depth in percent")
	scenarioCmd.Flags().StringVar(&scenarioCompare, "compare", "", "second retailer for a base elasticity comparison")
	scenarioCmd.Flags().StringVar(&scenarioStatement, "probability", "", `statement such as "base_elasticity[BJ's] < -2"`)
	rootCmd.AddCommand(scenarioCmd)
}
