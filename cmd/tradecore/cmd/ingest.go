package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradeproof/engine/internal/ledger"
	"github.com/tradeproof/engine/internal/observ"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay a jsonl file of fills into the ledger",
	Long: `Reads newline-delimited JSON fills and applies them to the ledger in order.

Each line carries a "type" of "entry" or "exit" plus the fill fields:

  {"type":"entry","owner":"u1","symbol":"EUR/USD","side":"long","price":1.0850,"quantity":10000,"timestamp":"2025-06-02T14:31:00Z"}
  {"type":"exit","owner":"u1","symbol":"EUR/USD","price":1.0900,"quantity":10000,"timestamp":"2025-06-02T16:00:00Z"}`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var ingestFile string

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to fills jsonl (required)")
	_ = ingestCmd.MarkFlagRequired("file")
}

// fillLine is one jsonl record. Entry and exit share most fields, so both
// shapes decode from the same struct and Type picks the operation.
type fillLine struct {
	Type string `json:"type"`
	ledger.EntryFill
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(ingestFile)
	if err != nil {
		return fmt.Errorf("open fills: %w", err)
	}
	defer f.Close()

	ctx := context.Background()
	var entries, exits, failed, lineNo int
	var totalPnL float64

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var fill fillLine
		if err := json.Unmarshal(line, &fill); err != nil {
			return fmt.Errorf("line %d: bad json: %w", lineNo, err)
		}

		switch fill.Type {
		case "entry":
			if _, err := a.ledger.Entry(ctx, fill.EntryFill); err != nil {
				failed++
				observ.Log("ingest_entry_failed", map[string]any{"line": lineNo, "error": err.Error()})
				continue
			}
			entries++
		case "exit":
			res, err := a.ledger.Exit(ctx, ledger.ExitFill{
				Owner: fill.Owner, Symbol: fill.Symbol, Hint: fill.Hint,
				Price: fill.Price, Quantity: fill.Quantity, Timestamp: fill.Timestamp,
			})
			if err != nil {
				failed++
				observ.Log("ingest_exit_failed", map[string]any{"line": lineNo, "error": err.Error()})
				continue
			}
			exits++
			totalPnL += res.TotalPnL
			if res.UnmatchedQuantity > 0 {
				fmt.Fprintf(os.Stderr, "line %d: %g units exceeded open exposure and were ignored\n", lineNo, res.UnmatchedQuantity)
			}
		default:
			return fmt.Errorf("line %d: unknown fill type %q", lineNo, fill.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read fills: %w", err)
	}

	fmt.Printf("ingested %d entries, %d exits (%d failed), realized PnL %.2f\n", entries, exits, failed, totalPnL)
	return nil
}
