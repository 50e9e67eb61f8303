package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradeproof/engine/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a file of trades against historical market data",
	Long: `Reads a JSON array of trades, checks each fill against the market range at
its timestamp, and writes per-trade results plus a summary to stdout.
Progress goes to stderr. Requires at least one provider API key.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

var verifyFile string

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "path to trades json (required)")
	_ = verifyCmd.MarkFlagRequired("file")
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.verifier == nil {
		return fmt.Errorf("verify needs at least one provider API key (set ALPHAVANTAGE_API_KEY or POLYGON_API_KEY)")
	}

	b, err := os.ReadFile(verifyFile)
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}
	var trades []verify.Trade
	if err := json.Unmarshal(b, &trades); err != nil {
		return fmt.Errorf("parse trades: %w", err)
	}
	if len(trades) == 0 {
		return fmt.Errorf("no trades in %s", verifyFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, summary, err := a.verifier.VerifyBatch(ctx, trades, func(done, total int) {
		fmt.Fprintf(os.Stderr, "verified %d/%d trades\n", done, total)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stopped early: %v\n", err)
	}

	out := struct {
		Results []verify.Result `json:"results"`
		Summary verify.Summary  `json:"summary"`
	}{Results: results, Summary: summary}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
