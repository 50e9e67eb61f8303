// Package ledger turns a stream of entry/exit fills into open and closed lots
// using FIFO matching, with realized PnL written exactly once at close time.
package ledger

import (
	"errors"
	"time"

	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

var (
	// ErrInvalidRequest means the fill is missing or has malformed fields.
	// Fail fast, never retried.
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrNoOpenPosition means an exit arrived with nothing to match.
	ErrNoOpenPosition = errors.New("no_open_position")
	// ErrUnsupportedSymbol means the normalizer could not place the ticker.
	ErrUnsupportedSymbol = errors.New("unsupported_symbol")
)

// Lot is one accounting unit of a position: a single entry fill, possibly
// split later by partial exits. A lot is either open (no exit fields) or
// closed; closed lots are immutable. Quantity on an open lot only ever
// decreases.
type Lot struct {
	ID         string             `json:"id"`
	Owner      string             `json:"owner"`
	Symbol     string             `json:"symbol"` // canonical ticker
	RawSymbol  string             `json:"raw_symbol,omitempty"`
	Class      symbols.AssetClass `json:"asset_class"`
	Side       pnl.Side           `json:"side"`
	Quantity   float64            `json:"quantity"`
	EntryPrice float64            `json:"entry_price"`
	EntryTime  time.Time          `json:"entry_time"`
	PipSize    float64            `json:"pip_size"`
	PipValue   float64            `json:"pip_value"`
	Open       bool               `json:"open"`

	ExitPrice      *float64   `json:"exit_price,omitempty"`
	ExitTime       *time.Time `json:"exit_time,omitempty"`
	RealizedPnL    *float64   `json:"realized_pnl,omitempty"`
	RealizedPnLPct *float64   `json:"realized_pnl_pct,omitempty"`
}

// EntryFill opens a new lot.
type EntryFill struct {
	Owner     string    `json:"owner"`
	Symbol    string    `json:"symbol"`
	Hint      string    `json:"instrument_type,omitempty"`
	Side      pnl.Side  `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// ExitFill closes open lots FIFO.
type ExitFill struct {
	Owner     string    `json:"owner"`
	Symbol    string    `json:"symbol"`
	Hint      string    `json:"instrument_type,omitempty"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// LotClose reports the outcome for one lot touched by an exit.
type LotClose struct {
	LotID          string  `json:"lot_id"`
	ClosedQuantity float64 `json:"closed_quantity"`
	PnL            float64 `json:"pnl"`
	PnLPct         float64 `json:"pnl_pct"`
	Partial        bool    `json:"partial"`
}

// ExitResult aggregates an exit across all lots it touched.
type ExitResult struct {
	Closes         []LotClose `json:"closes"`
	TotalPnL       float64    `json:"total_pnl"`
	AvgPnLPct      float64    `json:"avg_pnl_pct"` // mean of per-lot percentages
	QuantityClosed float64    `json:"quantity_closed"`
	// UnmatchedQuantity is exit quantity beyond total open exposure. It is
	// clamped, never opens an opposite position, and is surfaced so callers
	// can warn instead of silently dropping it.
	UnmatchedQuantity float64 `json:"unmatched_quantity,omitempty"`
}

func (f EntryFill) validate() error {
	if f.Owner == "" || f.Symbol == "" {
		return ErrInvalidRequest
	}
	if f.Side != pnl.Long && f.Side != pnl.Short {
		return ErrInvalidRequest
	}
	if f.Price <= 0 || f.Quantity <= 0 {
		return ErrInvalidRequest
	}
	if f.Timestamp.IsZero() {
		return ErrInvalidRequest
	}
	return nil
}

func (f ExitFill) validate() error {
	if f.Owner == "" || f.Symbol == "" {
		return ErrInvalidRequest
	}
	if f.Price <= 0 || f.Quantity <= 0 {
		return ErrInvalidRequest
	}
	if f.Timestamp.IsZero() {
		return ErrInvalidRequest
	}
	return nil
}
