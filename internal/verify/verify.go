// Package verify cross-checks reported fill prices against historical market
// ranges and scores how plausible each trade is.
package verify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tradeproof/engine/internal/marketdata"
	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

// LegSide marks which side of the trade a leg verifies.
type LegSide string

const (
	LegEntry LegSide = "entry"
	LegExit  LegSide = "exit"
)

// LegStatus classifies a fill price against the market range at its timestamp.
type LegStatus string

const (
	StatusRealistic           LegStatus = "realistic"
	StatusImpossibleLow       LegStatus = "impossible_low"
	StatusImpossibleHigh      LegStatus = "impossible_high"
	StatusSuspiciousPrecision LegStatus = "suspicious_precision"
	StatusUnknown             LegStatus = "unknown"
)

// Trade is one reported trade to verify.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Hint       string     `json:"instrument_type,omitempty"`
	Side       pnl.Side   `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_timestamp"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	ExitTime   *time.Time `json:"exit_timestamp,omitempty"`
}

// LegVerification is the per-leg outcome.
type LegVerification struct {
	Side      LegSide   `json:"side"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`

	MarketLow   *float64 `json:"market_low,omitempty"`
	MarketHigh  *float64 `json:"market_high,omitempty"`
	MarketOpen  *float64 `json:"market_open,omitempty"`
	MarketClose *float64 `json:"market_close,omitempty"`

	// Deviation is the percentage distance from the range midpoint.
	Deviation float64   `json:"deviation_pct"`
	Status    LegStatus `json:"status"`
	Score     float64   `json:"score"` // [0,1]
	Note      string    `json:"note,omitempty"`
	Provider  string    `json:"provider,omitempty"`
}

// Result is the trade-level aggregation of its legs.
type Result struct {
	TradeID    string                       `json:"trade_id"`
	Symbol     string                       `json:"symbol"`
	Class      symbols.AssetClass           `json:"asset_class"`
	Supported  bool                         `json:"supported"`
	Entry      LegVerification              `json:"entry"`
	Exit       *LegVerification             `json:"exit,omitempty"`
	Score      float64                      `json:"score"` // mean of leg scores
	Impossible bool                         `json:"impossible"`
	Suspicious bool                         `json:"suspicious"`
	Verified   bool                         `json:"verified"`
	Providers  []marketdata.ProviderAttempt `json:"providers,omitempty"`
}

// Summary aggregates a verification batch.
type Summary struct {
	Total              int            `json:"total"`
	Verified           int            `json:"verified"`
	Impossible         int            `json:"impossible"`
	Suspicious         int            `json:"suspicious"`
	Unknown            int            `json:"unknown"`
	MeanScore          float64        `json:"mean_score"`
	VerifiedByProvider map[string]int `json:"verified_by_provider,omitempty"`
}

// ProgressFunc receives (completed, total) after each batch group.
type ProgressFunc func(completed, total int)

// RangeSource is the slice of the market data gateway the engine needs.
type RangeSource interface {
	Range(ctx context.Context, sym symbols.NormalizedSymbol, at time.Time) (*marketdata.Range, []marketdata.ProviderAttempt, error)
}

// Config tunes batch pacing. Groups run sequentially with a delay between
// them so batch verification stays inside provider rate limits.
type Config struct {
	BatchSize  int
	GroupDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.GroupDelay < 0 {
		c.GroupDelay = 0
	}
}

// Engine scores trade authenticity against market data.
type Engine struct {
	gateway RangeSource
	symbols *symbols.Cache
	config  Config

	sleep func(context.Context, time.Duration) error
}

func NewEngine(gateway RangeSource, symCache *symbols.Cache, config Config) *Engine {
	config.applyDefaults()
	return &Engine{
		gateway: gateway,
		symbols: symCache,
		config:  config,
		sleep:   sleepCtx,
	}
}

// VerifyTrade produces the per-leg and trade-level verdict for one trade.
func (e *Engine) VerifyTrade(ctx context.Context, trade Trade) Result {
	sym := e.symbols.Normalize(trade.Symbol, trade.Hint)

	res := Result{
		TradeID:   trade.ID,
		Symbol:    sym.Canonical,
		Class:     sym.Class,
		Supported: sym.Supported,
	}

	if !sym.Supported {
		// Verification proceeds with a neutral score rather than failing.
		res.Entry = unknownLeg(LegEntry, trade.EntryPrice, trade.EntryTime, sym.Reason)
		if trade.ExitPrice != nil && trade.ExitTime != nil {
			leg := unknownLeg(LegExit, *trade.ExitPrice, *trade.ExitTime, sym.Reason)
			res.Exit = &leg
		}
		res.Score = scoreOf(res)
		observ.IncCounter("verify_trades_total", map[string]string{"status": "unsupported"})
		return res
	}

	res.Entry, res.Providers = e.verifyLeg(ctx, sym, LegEntry, trade.EntryPrice, trade.EntryTime)
	if trade.ExitPrice != nil && trade.ExitTime != nil {
		leg, attempts := e.verifyLeg(ctx, sym, LegExit, *trade.ExitPrice, *trade.ExitTime)
		res.Exit = &leg
		res.Providers = append(res.Providers, attempts...)
	}

	res.Score = scoreOf(res)
	res.Impossible = res.Entry.Status == StatusImpossibleLow || res.Entry.Status == StatusImpossibleHigh
	res.Suspicious = res.Entry.Status == StatusSuspiciousPrecision
	hasUnknown := res.Entry.Status == StatusUnknown
	if res.Exit != nil {
		res.Impossible = res.Impossible || res.Exit.Status == StatusImpossibleLow || res.Exit.Status == StatusImpossibleHigh
		res.Suspicious = res.Suspicious || res.Exit.Status == StatusSuspiciousPrecision
		hasUnknown = hasUnknown || res.Exit.Status == StatusUnknown
	}
	res.Verified = res.Supported && !res.Impossible && !hasUnknown && res.Score >= 0.7

	observ.IncCounter("verify_trades_total", map[string]string{"verified": fmt.Sprintf("%t", res.Verified)})
	return res
}

// verifyLeg fetches the market range for the leg's minute and scores the fill.
func (e *Engine) verifyLeg(ctx context.Context, sym symbols.NormalizedSymbol, side LegSide, price float64, at time.Time) (LegVerification, []marketdata.ProviderAttempt) {
	leg := LegVerification{Side: side, Price: price, Timestamp: at}

	rng, attempts, err := e.gateway.Range(ctx, sym, at)
	if err != nil || rng == nil {
		leg.Status = StatusUnknown
		leg.Score = 0.5
		leg.Note = "no market data"
		observ.IncCounter("verify_legs_total", map[string]string{"status": string(StatusUnknown)})
		return leg, attempts
	}

	leg.MarketLow = &rng.Low
	leg.MarketHigh = &rng.High
	leg.MarketOpen = &rng.Open
	leg.MarketClose = &rng.Close
	leg.Provider = rng.Provider

	scoreLeg(&leg, sym, *rng)
	observ.IncCounter("verify_legs_total", map[string]string{"status": string(leg.Status)})
	return leg, attempts
}

// scoreLeg applies the range checks: impossible outside [low-tol, high+tol],
// suspicious within a tight band of either extreme, otherwise scored by
// deviation from the midpoint.
func scoreLeg(leg *LegVerification, sym symbols.NormalizedSymbol, rng marketdata.Range) {
	tol := tolerance(sym, leg.Price)
	tight := tol * 0.1
	mid := (rng.Low + rng.High) / 2
	if mid > 0 {
		leg.Deviation = pnl.Round2(math.Abs(leg.Price-mid) / mid * 100)
	}

	switch {
	case leg.Price < rng.Low-tol:
		leg.Status = StatusImpossibleLow
		leg.Score = 0
		leg.Note = fmt.Sprintf("fill %.5f below market low %.5f", leg.Price, rng.Low)
	case leg.Price > rng.High+tol:
		leg.Status = StatusImpossibleHigh
		leg.Score = 0
		leg.Note = fmt.Sprintf("fill %.5f above market high %.5f", leg.Price, rng.High)
	case math.Abs(leg.Price-rng.Low) <= tight || math.Abs(leg.Price-rng.High) <= tight:
		leg.Status = StatusSuspiciousPrecision
		leg.Score = 0.3
		leg.Note = "fill sits exactly on the bar extreme"
	default:
		leg.Status = StatusRealistic
		devPct := math.Abs(leg.Price-mid) / mid * 100
		switch {
		case devPct < 0.1:
			leg.Score = 1.0
		case devPct < 0.5:
			leg.Score = 0.9
		case devPct < 1.0:
			leg.Score = 0.75
		default:
			leg.Score = 0.6
		}
	}
}

// tolerance is the asset-class-specific slack around the bar range: 2 pips
// for forex, 0.1% of price for crypto, 0.05% elsewhere.
func tolerance(sym symbols.NormalizedSymbol, price float64) float64 {
	switch sym.Class {
	case symbols.ClassForex:
		return 2 * sym.PipSize
	case symbols.ClassCrypto:
		return price * 0.001
	default:
		return price * 0.0005
	}
}

func unknownLeg(side LegSide, price float64, at time.Time, note string) LegVerification {
	return LegVerification{
		Side: side, Price: price, Timestamp: at,
		Status: StatusUnknown, Score: 0.5, Note: note,
	}
}

func scoreOf(res Result) float64 {
	if res.Exit == nil {
		return res.Entry.Score
	}
	return (res.Entry.Score + res.Exit.Score) / 2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
