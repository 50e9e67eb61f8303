package ledger

import (
	"sort"

	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

// MatchResult is the outcome of matching one exit fill against open lots.
// UpdatedLots are open lots whose quantity was reduced in place; ClosedLots
// are lot records that became closed (existing lots closed in full, plus new
// split-off records for partial closes).
type MatchResult struct {
	UpdatedLots []Lot
	ClosedLots  []Lot
	Closes      []LotClose
	Unmatched   float64
}

// MatchFIFO consumes exit quantity against open lots, oldest entry first.
// It is pure: callers pass the open lots and an id generator, and persist the
// returned records themselves. Lots passed in are not mutated.
//
// Walking oldest-first, each lot is either closed in full (exit quantity
// covers it) or split: the closed quantity becomes a new closed lot record
// and the original stays open with the remainder. Exit quantity beyond total
// open exposure is reported in Unmatched, not matched against anything.
func MatchFIFO(open []Lot, exit ExitFill, sym symbols.NormalizedSymbol, newID func() string) MatchResult {
	lots := make([]Lot, len(open))
	copy(lots, open)
	sort.SliceStable(lots, func(i, j int) bool {
		if lots[i].EntryTime.Equal(lots[j].EntryTime) {
			return lots[i].ID < lots[j].ID // ULIDs are time-sortable
		}
		return lots[i].EntryTime.Before(lots[j].EntryTime)
	})

	var res MatchResult
	remaining := exit.Quantity

	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		if !lot.Open {
			continue
		}

		if remaining >= lot.Quantity {
			// Full close: exit fields land on the lot itself.
			result := pnl.Calculate(pnl.Input{
				Side:       lot.Side,
				EntryPrice: lot.EntryPrice,
				ExitPrice:  exit.Price,
				Quantity:   lot.Quantity,
				Symbol:     sym,
			})
			closed := lot
			closed.Open = false
			closed.ExitPrice = ptr(exit.Price)
			closed.ExitTime = ptr(exit.Timestamp)
			closed.RealizedPnL = ptr(result.PnL)
			closed.RealizedPnLPct = ptr(result.PnLPct)

			res.ClosedLots = append(res.ClosedLots, closed)
			res.Closes = append(res.Closes, LotClose{
				LotID:          lot.ID,
				ClosedQuantity: lot.Quantity,
				PnL:            result.PnL,
				PnLPct:         result.PnLPct,
			})
			remaining -= lot.Quantity
			continue
		}

		// Partial close: split off a closed record, reduce the original.
		result := pnl.Calculate(pnl.Input{
			Side:       lot.Side,
			EntryPrice: lot.EntryPrice,
			ExitPrice:  exit.Price,
			Quantity:   remaining,
			Symbol:     sym,
		})
		split := lot
		split.ID = newID()
		split.Quantity = remaining
		split.Open = false
		split.ExitPrice = ptr(exit.Price)
		split.ExitTime = ptr(exit.Timestamp)
		split.RealizedPnL = ptr(result.PnL)
		split.RealizedPnLPct = ptr(result.PnLPct)

		reduced := lot
		reduced.Quantity = lot.Quantity - remaining

		res.ClosedLots = append(res.ClosedLots, split)
		res.UpdatedLots = append(res.UpdatedLots, reduced)
		res.Closes = append(res.Closes, LotClose{
			LotID:          split.ID,
			ClosedQuantity: remaining,
			PnL:            result.PnL,
			PnLPct:         result.PnLPct,
			Partial:        true,
		})
		remaining = 0
	}

	res.Unmatched = remaining
	return res
}

func ptr[T any](v T) *T { return &v }
