package verify

import (
	"context"
	"sync"

	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/pnl"
)

// VerifyBatch verifies trades in fixed-size groups. Trades within a group run
// concurrently; groups run sequentially with a delay in between to stay under
// provider quotas. Progress fires after every group with (completed, total).
//
// Cancellation is cooperative: a cancelled context stops further groups, but
// the in-flight group runs to completion. Results collected so far and the
// context error are returned.
func (e *Engine) VerifyBatch(ctx context.Context, trades []Trade, progress ProgressFunc) ([]Result, Summary, error) {
	results := make([]Result, 0, len(trades))
	total := len(trades)

	for start := 0; start < total; start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > total {
			end = total
		}
		group := trades[start:end]

		groupResults := make([]Result, len(group))
		var wg sync.WaitGroup
		for i, trade := range group {
			wg.Add(1)
			go func(i int, trade Trade) {
				defer wg.Done()
				groupResults[i] = e.VerifyTrade(ctx, trade)
			}(i, trade)
		}
		wg.Wait()
		results = append(results, groupResults...)

		if progress != nil {
			progress(len(results), total)
		}

		if len(results) < total {
			if err := ctx.Err(); err != nil {
				return results, summarize(results), err
			}
			if err := e.sleep(ctx, e.config.GroupDelay); err != nil {
				return results, summarize(results), err
			}
		}
	}

	summary := summarize(results)
	observ.Log("verify_batch_done", map[string]any{
		"total": summary.Total, "verified": summary.Verified,
		"impossible": summary.Impossible, "suspicious": summary.Suspicious,
		"unknown": summary.Unknown, "mean_score": summary.MeanScore,
	})
	return results, summary, nil
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results), VerifiedByProvider: map[string]int{}}
	var scoreSum float64
	for _, r := range results {
		scoreSum += r.Score
		if r.Verified {
			s.Verified++
			for _, p := range legProviders(r) {
				s.VerifiedByProvider[p]++
			}
		}
		if r.Impossible {
			s.Impossible++
		}
		if r.Suspicious {
			s.Suspicious++
		}
		if hasUnknownLeg(r) {
			s.Unknown++
		}
	}
	if s.Total > 0 {
		s.MeanScore = pnl.Round2(scoreSum / float64(s.Total))
	}
	return s
}

// legProviders lists the distinct providers that served a trade's legs.
func legProviders(r Result) []string {
	seen := map[string]bool{}
	var out []string
	if r.Entry.Provider != "" && !seen[r.Entry.Provider] {
		seen[r.Entry.Provider] = true
		out = append(out, r.Entry.Provider)
	}
	if r.Exit != nil && r.Exit.Provider != "" && !seen[r.Exit.Provider] {
		out = append(out, r.Exit.Provider)
	}
	return out
}

func hasUnknownLeg(r Result) bool {
	if r.Entry.Status == StatusUnknown {
		return true
	}
	return r.Exit != nil && r.Exit.Status == StatusUnknown
}
