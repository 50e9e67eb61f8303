package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradeproof/engine/internal/observ"
	"github.com/tradeproof/engine/internal/symbols"
)

// AlphaVantageProvider implements RangeProvider against the Alpha Vantage
// intraday endpoints. It is the primary provider and sits behind a shared
// rate limiter because the free tier allows only a handful of calls per minute.
type AlphaVantageProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// AlphaVantageConfig holds construction parameters.
type AlphaVantageConfig struct {
	APIKey         string
	BaseURL        string // override for tests; defaults to the public API
	TimeoutSeconds int
}

// NewAlphaVantageProvider builds the adapter. The limiter is injected, not
// owned: it guards the provider's account-wide quota, so every caller must
// share the same instance.
func NewAlphaVantageProvider(cfg AlphaVantageConfig, limiter *rate.Limiter) (*AlphaVantageProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("alphavantage: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co/query"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &AlphaVantageProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter:    limiter,
	}, nil
}

func (av *AlphaVantageProvider) Name() string { return "alphavantage" }

// DayBars fetches minute bars for the day containing `day`. Index and
// commodity tickers have no intraday endpoint on Alpha Vantage; those return
// empty so the gateway falls through to the secondary provider.
func (av *AlphaVantageProvider) DayBars(ctx context.Context, sym symbols.NormalizedSymbol, day time.Time) ([]Bar, error) {
	params := url.Values{"apikey": []string{av.apiKey}, "interval": []string{"1min"}, "outputsize": []string{"full"}}

	var seriesKey string
	switch sym.Class {
	case symbols.ClassForex, symbols.ClassMetal:
		params.Set("function", "FX_INTRADAY")
		params.Set("from_symbol", sym.Base)
		params.Set("to_symbol", sym.Quote)
		seriesKey = "Time Series FX (1min)"
	case symbols.ClassCrypto:
		params.Set("function", "CRYPTO_INTRADAY")
		params.Set("symbol", sym.Base)
		params.Set("market", quoteMarket(sym.Quote))
		seriesKey = "Time Series Crypto (1min)"
	case symbols.ClassStock:
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("symbol", sym.Canonical)
		seriesKey = "Time Series (1min)"
	default:
		return nil, nil
	}

	if av.limiter != nil {
		waitStart := time.Now()
		if err := av.limiter.Wait(ctx); err != nil {
			return nil, NewNetworkError(sym.Canonical, "rate limit wait cancelled", err)
		}
		observ.RecordDuration("provider_rate_wait", time.Since(waitStart), map[string]string{"provider": av.Name()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, av.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, NewNetworkError(sym.Canonical, "failed to create request", err)
	}
	resp, err := av.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(sym.Canonical, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitError(sym.Canonical, "API rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, NewProviderError(sym.Canonical, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
	}

	bars, err := parseIntradaySeries(resp.Body, seriesKey, sym.Canonical)
	if err != nil {
		return nil, err
	}
	return barsForDay(bars, day), nil
}

// parseIntradaySeries decodes the Alpha Vantage response shape: a metadata
// object plus a map of "YYYY-MM-DD HH:MM:SS" -> {"1. open": ...} entries.
func parseIntradaySeries(body io.Reader, seriesKey, symbol string) ([]Bar, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, NewProviderError(symbol, "failed to parse response", err)
	}

	if msg, ok := raw["Error Message"]; ok {
		return nil, NewProviderError(symbol, string(msg), nil)
	}
	if msg, ok := raw["Information"]; ok {
		// Free-tier throttling arrives as a 200 with an Information note.
		return nil, NewRateLimitError(symbol, string(msg))
	}

	seriesRaw, ok := raw[seriesKey]
	if !ok {
		return nil, nil
	}
	var series map[string]map[string]string
	if err := json.Unmarshal(seriesRaw, &series); err != nil {
		return nil, NewProviderError(symbol, "failed to parse time series", err)
	}

	bars := make([]Bar, 0, len(series))
	for ts, fields := range series {
		t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, time.UTC)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Time:   t,
			Open:   parseFloat(fields["1. open"]),
			High:   parseFloat(fields["2. high"]),
			Low:    parseFloat(fields["3. low"]),
			Close:  parseFloat(fields["4. close"]),
			Volume: parseFloat(fields["5. volume"]),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// quoteMarket maps stablecoin quotes to the fiat market Alpha Vantage quotes in.
func quoteMarket(quote string) string {
	switch quote {
	case "USDT", "USDC", "BUSD", "TUSD", "":
		return "USD"
	default:
		return quote
	}
}

func parseFloat(s string) float64 {
	var v float64
	_, _ = fmt.Sscanf(s, "%f", &v)
	return v
}

// barsForDay filters bars to the UTC calendar day containing `day`.
func barsForDay(bars []Bar, day time.Time) []Bar {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	var out []Bar
	for _, b := range bars {
		if !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out
}
