package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeproof/engine/internal/symbols"
)

// stubProvider serves canned bars or errors and counts calls.
type stubProvider struct {
	name  string
	bars  []Bar
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) DayBars(ctx context.Context, sym symbols.NormalizedSymbol, day time.Time) ([]Bar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func testBars(base time.Time) []Bar {
	return []Bar{
		{Time: base, Open: 100, High: 101, Low: 99, Close: 100.5},
		{Time: base.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101.5},
		{Time: base.Add(2 * time.Minute), Open: 101.5, High: 103, Low: 101, Close: 102},
	}
}

func fastConfig() GatewayConfig {
	return GatewayConfig{Attempts: 2, Backoff: time.Millisecond}
}

func TestGateway_PrimarySuccess(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 31, 20, 0, time.UTC)
	primary := &stubProvider{name: "alphavantage", bars: testBars(at.Truncate(time.Minute))}
	secondary := &stubProvider{name: "polygon"}
	g := NewGateway([]RangeProvider{primary, secondary}, fastConfig())

	sym := symbols.Normalize("AAPL", "")
	rng, attempts, err := g.Range(context.Background(), sym, at)
	require.NoError(t, err)
	require.NotNil(t, rng)

	// 14:31:20 is closest to the 14:31 bar.
	assert.Equal(t, 99.0, rng.Low)
	assert.Equal(t, 101.0, rng.High)
	assert.Equal(t, "alphavantage", rng.Provider)

	require.Len(t, attempts, 2)
	assert.Equal(t, AttemptSuccess, attempts[0].Status)
	assert.Equal(t, AttemptNotAttempted, attempts[1].Status)
	assert.Equal(t, 0, secondary.calls)
}

func TestGateway_CacheReusedWithinMinute(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 31, 5, 0, time.UTC)
	primary := &stubProvider{name: "alphavantage", bars: testBars(at.Truncate(time.Minute))}
	g := NewGateway([]RangeProvider{primary}, fastConfig())
	sym := symbols.Normalize("AAPL", "")

	_, _, err := g.Range(context.Background(), sym, at)
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)

	// Same minute, different second: served from cache.
	rng, attempts, err := g.Range(context.Background(), sym, at.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, "cache", attempts[0].Detail)

	// Different minute misses.
	_, _, err = g.Range(context.Background(), sym, at.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

func TestGateway_FallbackOnPrimaryError(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	primary := &stubProvider{name: "alphavantage", err: errors.New("boom")}
	secondary := &stubProvider{name: "polygon", bars: testBars(at)}
	g := NewGateway([]RangeProvider{primary, secondary}, fastConfig())

	sym := symbols.Normalize("EURUSD", "")
	rng, attempts, err := g.Range(context.Background(), sym, at)
	require.NoError(t, err)
	require.NotNil(t, rng)

	assert.Equal(t, "polygon", rng.Provider)
	assert.Equal(t, AttemptError, attempts[0].Status)
	assert.Equal(t, AttemptSuccess, attempts[1].Status)
	assert.Equal(t, 2, primary.calls, "primary retried before falling back")
}

func TestGateway_FallbackOnPrimaryEmpty(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	primary := &stubProvider{name: "alphavantage"} // no bars
	secondary := &stubProvider{name: "polygon", bars: testBars(at)}
	g := NewGateway([]RangeProvider{primary, secondary}, fastConfig())

	sym := symbols.Normalize("US30", "")
	rng, attempts, err := g.Range(context.Background(), sym, at)
	require.NoError(t, err)
	require.NotNil(t, rng)

	assert.Equal(t, AttemptEmpty, attempts[0].Status)
	assert.Equal(t, 1, primary.calls, "empty result is definitive, no retry")
}

func TestGateway_AllProvidersFail(t *testing.T) {
	at := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	primary := &stubProvider{name: "alphavantage", err: errors.New("down")}
	secondary := &stubProvider{name: "polygon", err: errors.New("also down")}
	g := NewGateway([]RangeProvider{primary, secondary}, fastConfig())

	sym := symbols.Normalize("AAPL", "")
	rng, attempts, err := g.Range(context.Background(), sym, at)
	require.NoError(t, err, "provider failure is not a gateway error")
	assert.Nil(t, rng)
	assert.Equal(t, AttemptError, attempts[0].Status)
	assert.Equal(t, AttemptError, attempts[1].Status)
}

func TestGateway_UnsupportedSymbol(t *testing.T) {
	g := NewGateway([]RangeProvider{&stubProvider{name: "alphavantage"}}, fastConfig())
	_, _, err := g.Range(context.Background(), symbols.Normalize("NQ1!", ""), time.Now())
	require.Error(t, err)
}

func TestGateway_ContextCancelled(t *testing.T) {
	primary := &stubProvider{name: "alphavantage", err: errors.New("down")}
	g := NewGateway([]RangeProvider{primary}, GatewayConfig{Attempts: 2, Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.Range(ctx, symbols.Normalize("AAPL", ""), time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestClosestBar(t *testing.T) {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	bars := testBars(base)

	assert.Equal(t, bars[0], closestBar(bars, base.Add(10*time.Second)))
	assert.Equal(t, bars[1], closestBar(bars, base.Add(50*time.Second)))
	assert.Equal(t, bars[2], closestBar(bars, base.Add(10*time.Minute)))
}
