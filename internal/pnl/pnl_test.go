package pnl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeproof/engine/internal/symbols"
)

func TestCalculate_Stock(t *testing.T) {
	aapl := symbols.Normalize("AAPL", "")

	long := Calculate(Input{Side: Long, EntryPrice: 100, ExitPrice: 110, Quantity: 10, Symbol: aapl})
	assert.Equal(t, 100.00, long.PnL)
	assert.Equal(t, 10.00, long.PnLPct)

	short := Calculate(Input{Side: Short, EntryPrice: 100, ExitPrice: 110, Quantity: 10, Symbol: aapl})
	assert.Equal(t, -100.00, short.PnL)
	assert.Equal(t, -10.00, short.PnLPct)
}

func TestCalculate_ForexPips(t *testing.T) {
	eurusd := symbols.Normalize("EURUSD", "")

	res := Calculate(Input{Side: Long, EntryPrice: 1.1000, ExitPrice: 1.1050, Quantity: 10000, Symbol: eurusd})
	assert.Equal(t, 50.00, res.PnL, "50 pips x 10000 units x 0.0001")
	assert.Equal(t, 50.00, res.Pips)
	assert.Equal(t, 0.0001, res.UnitValue)

	// JPY-quoted pairs use the 0.01 pip.
	usdjpy := symbols.Normalize("USDJPY", "")
	res = Calculate(Input{Side: Short, EntryPrice: 150.50, ExitPrice: 150.00, Quantity: 1000, Symbol: usdjpy})
	assert.Equal(t, 50.00, res.Pips)
	assert.Equal(t, 500.00, res.PnL)
}

func TestCalculate_MetalTicks(t *testing.T) {
	gold := symbols.Normalize("XAUUSD", "")

	res := Calculate(Input{Side: Long, EntryPrice: 2000.0, ExitPrice: 2001.0, Quantity: 2, Symbol: gold})
	assert.Equal(t, 10.00, res.Ticks, "1.0 move / 0.1 tick")
	assert.Equal(t, 20.00, res.PnL)
	assert.Equal(t, 1.0, res.UnitValue)
}

func TestCalculate_Crypto(t *testing.T) {
	btc := symbols.Normalize("BTCUSDT", "")

	res := Calculate(Input{Side: Long, EntryPrice: 50000, ExitPrice: 51234.567, Quantity: 0.5, Symbol: btc})
	assert.Equal(t, 617.28, res.PnL)
	assert.Equal(t, 0.0, res.Pips)
	assert.Equal(t, 0.0, res.Ticks)
}

func TestCalculate_ZeroCostBasis(t *testing.T) {
	aapl := symbols.Normalize("AAPL", "")
	res := Calculate(Input{Side: Long, EntryPrice: 0, ExitPrice: 10, Quantity: 5, Symbol: aapl})
	assert.Equal(t, 50.00, res.PnL)
	assert.Equal(t, 0.0, res.PnLPct, "no percentage when cost basis is zero")
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2349))
	assert.Equal(t, 1.24, Round2(1.2351))
	assert.Equal(t, -1.23, Round2(-1.2349))
	assert.Equal(t, 0.0, Round2(0))
}
