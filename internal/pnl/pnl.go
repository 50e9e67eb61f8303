// Package pnl computes realized profit and loss for a closed quantity.
// All functions are pure; monetary outputs are rounded to 2 decimal places.
package pnl

import (
	"math"

	"github.com/tradeproof/engine/internal/symbols"
)

// Side of the position being closed.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Input describes one closing fill against one lot.
type Input struct {
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Symbol     symbols.NormalizedSymbol
}

// Result is the realized outcome for the closed quantity.
type Result struct {
	PnL    float64 `json:"pnl"`
	PnLPct float64 `json:"pnl_pct"`

	// Asset-class breakdown; zero for classes where it does not apply.
	Pips      float64 `json:"pips,omitempty"`       // forex
	Ticks     float64 `json:"ticks,omitempty"`      // metal/index/commodity
	UnitValue float64 `json:"unit_value,omitempty"` // value of one pip/tick per unit
}

// Calculate computes realized PnL for a fill. Long profits when exit > entry,
// short profits when entry > exit.
func Calculate(in Input) Result {
	priceDiff := in.ExitPrice - in.EntryPrice
	if in.Side == Short {
		priceDiff = in.EntryPrice - in.ExitPrice
	}

	var res Result
	switch in.Symbol.Class {
	case symbols.ClassForex:
		pips := priceDiff / in.Symbol.PipSize
		res.Pips = Round2(pips)
		res.UnitValue = in.Symbol.PipSize
		res.PnL = Round2(pips * in.Quantity * in.Symbol.PipSize)
	case symbols.ClassMetal, symbols.ClassIndex, symbols.ClassCommodity:
		ticks := priceDiff / in.Symbol.PipSize
		res.Ticks = Round2(ticks)
		res.UnitValue = in.Symbol.PipValue
		res.PnL = Round2(ticks * in.Quantity * in.Symbol.PipValue)
	default:
		// crypto, stock: linear in price.
		res.PnL = Round2(priceDiff * in.Quantity)
	}

	costBasis := in.EntryPrice * in.Quantity
	if costBasis > 0 {
		res.PnLPct = Round2(res.PnL / costBasis * 100)
	}
	return res
}

// Round2 rounds to 2 decimal places, the monetary precision used everywhere
// in the ledger.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
