package marketdata

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/symbols"
)

// GatewayConfig tunes caching and retry behavior.
type GatewayConfig struct {
	// Attempts per provider before moving to the next one in the chain.
	Attempts int
	// Fixed backoff between attempts against the same provider.
	Backoff time.Duration
	// TTL for bars whose minute has closed; they are immutable, so this is long.
	HistoricalTTL time.Duration
	// TTL for the still-forming current minute.
	LiveTTL time.Duration
}

func (c *GatewayConfig) applyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.HistoricalTTL <= 0 {
		c.HistoricalTTL = 30 * time.Minute
	}
	if c.LiveTTL <= 0 {
		c.LiveTTL = 15 * time.Second
	}
}

type cacheEntry struct {
	rng       Range
	fetchedAt time.Time
	ttl       time.Duration
}

// Gateway answers "what did the market look like at this instant" by walking
// an ordered chain of range providers. It owns the range cache; rate limiting
// lives inside the primary adapter (shared limiter), retries and fallback
// live here.
type Gateway struct {
	providers []RangeProvider
	config    GatewayConfig

	mu    sync.RWMutex
	cache map[string]cacheEntry

	sleep func(context.Context, time.Duration) error // injectable for tests
}

// NewGateway builds a gateway over an ordered provider chain, primary first.
func NewGateway(providers []RangeProvider, config GatewayConfig) *Gateway {
	config.applyDefaults()
	g := &Gateway{
		providers: providers,
		config:    config,
		cache:     make(map[string]cacheEntry),
		sleep:     sleepCtx,
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	observ.Log("marketdata_gateway_created", map[string]any{"providers": names})
	return g
}

// Range returns the OHLC range covering `at` for a symbol, or nil if no
// provider had data. Provider failures are folded into the attempt list and
// never surface as errors; only context cancellation does.
func (g *Gateway) Range(ctx context.Context, sym symbols.NormalizedSymbol, at time.Time) (*Range, []ProviderAttempt, error) {
	if !sym.Supported {
		return nil, nil, NewBadSymbolError(sym.Raw, "unsupported symbol")
	}

	attempts := make([]ProviderAttempt, len(g.providers))
	for i, p := range g.providers {
		attempts[i] = ProviderAttempt{Provider: p.Name(), Status: AttemptNotAttempted}
	}

	// Cache lookup, scoped per provider so a fallback hit does not mask a
	// later recovery of the primary.
	for i, p := range g.providers {
		if rng, ok := g.cacheGet(cacheKey(p.Name(), sym, at)); ok {
			attempts[i].Status = AttemptSuccess
			attempts[i].Detail = "cache"
			observ.IncCounter("range_cache_hits_total", map[string]string{"provider": p.Name()})
			return &rng, attempts, nil
		}
	}
	observ.IncCounter("range_cache_misses_total", nil)

	for i, p := range g.providers {
		rng, status, detail, err := g.fetchFromProvider(ctx, p, sym, at)
		if err != nil {
			return nil, attempts, err // context cancelled
		}
		attempts[i].Status = status
		attempts[i].Detail = detail
		if rng != nil {
			g.cachePut(cacheKey(p.Name(), sym, at), *rng, at)
			return rng, attempts, nil
		}
		// provider failed or had nothing; fall through to the next one
		observ.IncCounter("provider_fallback_total", map[string]string{
			"from": p.Name(), "status": string(status),
		})
	}

	observ.Log("range_unavailable", map[string]any{
		"symbol": sym.Canonical, "at": at.UTC().Format(time.RFC3339),
	})
	return nil, attempts, nil
}

// fetchFromProvider runs the bounded retry loop for one provider and reduces
// the day's bars to the range around `at`.
func (g *Gateway) fetchFromProvider(ctx context.Context, p RangeProvider, sym symbols.NormalizedSymbol, at time.Time) (*Range, AttemptStatus, string, error) {
	var lastErr error
	for attempt := 0; attempt < g.config.Attempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.config.Backoff); err != nil {
				return nil, AttemptError, "cancelled", err
			}
		}

		start := time.Now()
		observ.IncCounter("provider_requests_total", map[string]string{"provider": p.Name()})
		bars, err := p.DayBars(ctx, sym, at)
		observ.RecordDuration("provider_request", time.Since(start), map[string]string{"provider": p.Name()})

		if err != nil {
			if ctx.Err() != nil {
				return nil, AttemptError, "cancelled", ctx.Err()
			}
			lastErr = err
			observ.IncCounter("provider_errors_total", map[string]string{"provider": p.Name()})
			continue
		}
		if len(bars) == 0 {
			return nil, AttemptEmpty, "no bars for day", nil
		}

		bar := closestBar(bars, at)
		return &Range{
			Low:      bar.Low,
			High:     bar.High,
			Open:     bar.Open,
			Close:    bar.Close,
			Provider: p.Name(),
			BarTime:  bar.Time,
		}, AttemptSuccess, "", nil
	}
	return nil, AttemptError, fmt.Sprintf("%v", lastErr), nil
}

// closestBar picks the bar whose timestamp is nearest to `at`.
func closestBar(bars []Bar, at time.Time) Bar {
	best := bars[0]
	bestDist := math.Abs(float64(at.Sub(best.Time)))
	for _, b := range bars[1:] {
		d := math.Abs(float64(at.Sub(b.Time)))
		if d < bestDist {
			best = b
			bestDist = d
		}
	}
	return best
}

// cacheKey buckets lookups to the minute: repeated lookups for the same
// minute within one verification pass must reuse the same entry.
func cacheKey(provider string, sym symbols.NormalizedSymbol, at time.Time) string {
	return provider + "|" + sym.Canonical + "|" + fmt.Sprint(at.UTC().Truncate(time.Minute).Unix())
}

func (g *Gateway) cacheGet(key string) (Range, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.cache[key]
	if !ok || time.Since(e.fetchedAt) > e.ttl {
		return Range{}, false
	}
	return e.rng, true
}

func (g *Gateway) cachePut(key string, rng Range, at time.Time) {
	ttl := g.config.HistoricalTTL
	if time.Since(at) < time.Minute {
		// Current minute is still forming; keep it only briefly.
		ttl = g.config.LiveTTL
	}
	g.mu.Lock()
	g.cache[key] = cacheEntry{rng: rng, fetchedAt: time.Now(), ttl: ttl}
	g.mu.Unlock()
}

// CacheSize reports the number of cached ranges (expired entries included
// until overwritten; eviction is lazy).
func (g *Gateway) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
