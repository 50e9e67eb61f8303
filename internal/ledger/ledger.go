package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/tradeproof/engine/internal/id"
	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

// Ledger ingests entry/exit fills and maintains lots in a Store. Mutations
// for a given owner+symbol are serialized through a keyed mutex: concurrent
// exits against the same open lots would otherwise race on FIFO consumption
// and double-count closures.
type Ledger struct {
	store   Store
	symbols *symbols.Cache
	locks   keyedMutex
	newID   func() string
}

func New(store Store, symCache *symbols.Cache) *Ledger {
	return &Ledger{
		store:   store,
		symbols: symCache,
		newID:   id.New,
	}
}

// Entry creates a new open lot. Multiple open lots per owner+symbol are
// expected (position scaling); each is tracked independently.
func (l *Ledger) Entry(ctx context.Context, fill EntryFill) (*Lot, error) {
	if err := fill.validate(); err != nil {
		return nil, fmt.Errorf("%w: entry %s %s", err, fill.Owner, fill.Symbol)
	}
	sym := l.symbols.Normalize(fill.Symbol, fill.Hint)
	if !sym.Supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, sym.Reason)
	}

	lot := Lot{
		ID:         l.newID(),
		Owner:      fill.Owner,
		Symbol:     sym.Canonical,
		RawSymbol:  fill.Symbol,
		Class:      sym.Class,
		Side:       fill.Side,
		Quantity:   fill.Quantity,
		EntryPrice: fill.Price,
		EntryTime:  fill.Timestamp.UTC(),
		PipSize:    sym.PipSize,
		PipValue:   sym.PipValue,
		Open:       true,
	}

	unlock := l.locks.lock(fill.Owner + "|" + sym.Canonical)
	defer unlock()

	if err := l.store.InsertLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("insert lot: %w", err)
	}

	observ.IncCounter("ledger_lots_opened_total", map[string]string{"asset_class": string(sym.Class)})
	observ.Log("lot_opened", map[string]any{
		"lot_id": lot.ID, "owner": lot.Owner, "symbol": lot.Symbol,
		"side": string(lot.Side), "quantity": lot.Quantity, "entry_price": lot.EntryPrice,
	})
	return &lot, nil
}

// Exit consumes open lots FIFO. The store commit happens only after every
// PnL figure is computed, so a calculator or store failure never leaves the
// ledger with partially written closures.
func (l *Ledger) Exit(ctx context.Context, fill ExitFill) (*ExitResult, error) {
	if err := fill.validate(); err != nil {
		return nil, fmt.Errorf("%w: exit %s %s", err, fill.Owner, fill.Symbol)
	}
	sym := l.symbols.Normalize(fill.Symbol, fill.Hint)
	if !sym.Supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, sym.Reason)
	}

	unlock := l.locks.lock(fill.Owner + "|" + sym.Canonical)
	defer unlock()

	open, err := l.store.OpenLots(ctx, fill.Owner, sym.Canonical)
	if err != nil {
		return nil, fmt.Errorf("load open lots: %w", err)
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoOpenPosition, fill.Owner, sym.Canonical)
	}

	match := MatchFIFO(open, fill, sym, l.newID)
	if err := l.store.ApplyMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("apply match: %w", err)
	}

	res := summarize(match)
	observ.IncCounterBy("ledger_lots_closed_total", map[string]string{"asset_class": string(sym.Class)}, float64(len(match.ClosedLots)))
	observ.Log("exit_matched", map[string]any{
		"owner": fill.Owner, "symbol": sym.Canonical,
		"lots_touched": len(res.Closes), "total_pnl": res.TotalPnL,
		"unmatched_quantity": res.UnmatchedQuantity,
	})
	if res.UnmatchedQuantity > 0 {
		observ.IncCounter("ledger_unmatched_exits_total", nil)
	}
	return &res, nil
}

// Positions returns all lots for an owner, oldest first.
func (l *Ledger) Positions(ctx context.Context, owner string) ([]Lot, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidRequest)
	}
	return l.store.LotsByOwner(ctx, owner)
}

// summarize folds per-lot closes into the aggregate exit result. The mean
// percentage is taken across lots, not re-derived from the aggregate price.
func summarize(match MatchResult) ExitResult {
	res := ExitResult{Closes: match.Closes, UnmatchedQuantity: match.Unmatched}
	var pctSum float64
	for _, c := range match.Closes {
		res.TotalPnL += c.PnL
		res.QuantityClosed += c.ClosedQuantity
		pctSum += c.PnLPct
	}
	res.TotalPnL = pnl.Round2(res.TotalPnL)
	if n := len(match.Closes); n > 0 {
		res.AvgPnLPct = pnl.Round2(pctSum / float64(n))
	}
	return res
}

// keyedMutex serializes work per string key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
