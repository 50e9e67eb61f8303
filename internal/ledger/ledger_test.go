package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeproof/engine/internal/pnl"
	"github.com/tradeproof/engine/internal/symbols"
)

func newTestLedger() *Ledger {
	return New(NewMemoryStore(), symbols.NewCache())
}

func TestLedger_EntryCreatesOpenLot(t *testing.T) {
	l := newTestLedger()
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	lot, err := l.Entry(context.Background(), EntryFill{
		Owner: "u1", Symbol: "EUR/USD", Side: pnl.Long, Price: 1.1000, Quantity: 10000, Timestamp: ts,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, lot.ID)
	assert.Equal(t, "EURUSD", lot.Symbol)
	assert.Equal(t, symbols.ClassForex, lot.Class)
	assert.Equal(t, 0.0001, lot.PipSize)
	assert.True(t, lot.Open)

	lots, err := l.Positions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, lots, 1)
}

func TestLedger_ExitFullCycle(t *testing.T) {
	l := newTestLedger()
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_, err := l.Entry(ctx, EntryFill{Owner: "u1", Symbol: "EURUSD", Side: pnl.Long, Price: 1.1000, Quantity: 10000, Timestamp: ts})
	require.NoError(t, err)

	res, err := l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "EURUSD", Price: 1.1050, Quantity: 10000, Timestamp: ts.Add(time.Hour)})
	require.NoError(t, err)

	require.Len(t, res.Closes, 1)
	assert.Equal(t, 50.00, res.TotalPnL, "50 pips on 10k units")
	assert.Equal(t, 10000.0, res.QuantityClosed)
	assert.Zero(t, res.UnmatchedQuantity)

	lots, err := l.Positions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.False(t, lots[0].Open)
	require.NotNil(t, lots[0].RealizedPnL)
	assert.Equal(t, 50.00, *lots[0].RealizedPnL)
}

func TestLedger_ExitNoOpenPosition(t *testing.T) {
	l := newTestLedger()
	_, err := l.Exit(context.Background(), ExitFill{
		Owner: "u1", Symbol: "AAPL", Price: 100, Quantity: 10, Timestamp: time.Now(),
	})
	require.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestLedger_ExitWrongSymbolDoesNotMatch(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	ts := time.Now().UTC()

	_, err := l.Entry(ctx, EntryFill{Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 10, Timestamp: ts})
	require.NoError(t, err)

	_, err = l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "MSFT", Price: 100, Quantity: 10, Timestamp: ts})
	require.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestLedger_ValidationErrors(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	ts := time.Now().UTC()

	cases := []EntryFill{
		{Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 10, Timestamp: ts},        // no owner
		{Owner: "u1", Side: pnl.Long, Price: 100, Quantity: 10, Timestamp: ts},           // no symbol
		{Owner: "u1", Symbol: "AAPL", Side: "sideways", Price: 100, Quantity: 10, Timestamp: ts},
		{Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: -1, Quantity: 10, Timestamp: ts},
		{Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 0, Timestamp: ts},
		{Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 10},          // no timestamp
	}
	for _, fill := range cases {
		_, err := l.Entry(ctx, fill)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	_, err := l.Entry(ctx, EntryFill{Owner: "u1", Symbol: "NQ1!", Side: pnl.Long, Price: 100, Quantity: 10, Timestamp: ts})
	assert.ErrorIs(t, err, ErrUnsupportedSymbol)
}

func TestLedger_ScalingAndPartialExits(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	// Scale in three times.
	for i, price := range []float64{100, 102, 104} {
		_, err := l.Entry(ctx, EntryFill{
			Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: price, Quantity: 10,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	// Exit 15: full close of the first lot, split of the second.
	res, err := l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "AAPL", Price: 110, Quantity: 15, Timestamp: ts.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, res.Closes, 2)
	assert.Equal(t, 100.00, res.Closes[0].PnL, "(110-100)*10")
	assert.Equal(t, 40.00, res.Closes[1].PnL, "(110-102)*5")
	assert.Equal(t, 140.00, res.TotalPnL)

	// Remaining open exposure: 5 @ 102, 10 @ 104.
	lots, err := l.Positions(ctx, "u1")
	require.NoError(t, err)
	var openQty float64
	for _, lot := range lots {
		if lot.Open {
			openQty += lot.Quantity
		}
	}
	assert.Equal(t, 15.0, openQty)

	// Exit everything plus excess: clamped with a warning, never negative exposure.
	res, err = l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "AAPL", Price: 112, Quantity: 20, Timestamp: ts.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.UnmatchedQuantity)
	assert.Equal(t, 15.0, res.QuantityClosed)

	lots, _ = l.Positions(ctx, "u1")
	for _, lot := range lots {
		assert.False(t, lot.Open, "all lots closed after the flattening exit")
	}
}

func TestLedger_RealizedPnLWrittenOnce(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, err := l.Entry(ctx, EntryFill{Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 10, Timestamp: ts})
	require.NoError(t, err)

	_, err = l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "AAPL", Price: 110, Quantity: 4, Timestamp: ts.Add(time.Minute)})
	require.NoError(t, err)

	lots, _ := l.Positions(ctx, "u1")
	var closedPnL float64
	for _, lot := range lots {
		if !lot.Open {
			closedPnL = *lot.RealizedPnL
		}
	}

	// A later exit at a different price must not touch the earlier closure.
	_, err = l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "AAPL", Price: 90, Quantity: 6, Timestamp: ts.Add(2 * time.Minute)})
	require.NoError(t, err)

	lots, _ = l.Positions(ctx, "u1")
	found := false
	for _, lot := range lots {
		if !lot.Open && *lot.RealizedPnL == closedPnL {
			found = true
		}
	}
	assert.True(t, found, "first closure's PnL is immutable")
}

func TestLedger_ConcurrentExitsSerialized(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	ts := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		_, err := l.Entry(ctx, EntryFill{
			Owner: "u1", Symbol: "AAPL", Side: pnl.Long, Price: 100, Quantity: 1,
			Timestamp: ts.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	// Ten concurrent single-unit exits: each must consume a distinct lot.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalClosed float64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Exit(ctx, ExitFill{Owner: "u1", Symbol: "AAPL", Price: 101, Quantity: 1, Timestamp: ts.Add(time.Hour)})
			if err != nil {
				return
			}
			mu.Lock()
			totalClosed += res.QuantityClosed
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, totalClosed, "no double-counted closures under concurrency")
	lots, _ := l.Positions(ctx, "u1")
	for _, lot := range lots {
		assert.False(t, lot.Open)
	}
}
