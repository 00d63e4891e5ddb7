package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "elasticity-cli",
	Short:        "Retail price elasticity pipeline",
	Long:         "Normalizes retailer weekly sales extracts into one panel, fits a hierarchical Bayesian elasticity model and reports posterior summaries, scenarios and convergence.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
