package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradecore",
	Short: "Trading journal core: fill ingestion, FIFO PnL, and trade verification",
	Long: `tradecore is the backend for a retail trading journal.

It provides:
  - Symbol normalization across forex, crypto, stocks, metals, and indices
  - A FIFO position ledger with per-lot realized PnL
  - Trade verification against historical market ranges
  - An HTTP API over all of the above

Configuration comes from a yaml file (see config.example.yaml); provider API
keys can also be set via ALPHAVANTAGE_API_KEY and POLYGON_API_KEY.`,
	SilenceUsage: true,
}

var cfgPath string

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to yaml config (defaults apply when omitted)")
}
