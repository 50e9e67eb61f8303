package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradeproof/engine/internal/symbols"
)

// PolygonProvider implements RangeProvider against the Polygon.io aggregates
// API. It is the secondary provider in the fallback chain and uses its own
// symbol mapping (C: forex, X: crypto, I: indices).
type PolygonProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// PolygonConfig holds construction parameters.
type PolygonConfig struct {
	APIKey         string
	BaseURL        string // override for tests
	TimeoutSeconds int
}

func NewPolygonProvider(cfg PolygonConfig) (*PolygonProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("polygon: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	return &PolygonProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

func (p *PolygonProvider) Name() string { return "polygon" }

// polygonAggsResponse is the /v2/aggs envelope.
type polygonAggsResponse struct {
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Status       string `json:"status"`
	Results      []struct {
		T int64   `json:"t"` // epoch millis
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
	Error string `json:"error"`
}

// DayBars fetches minute aggregates for the UTC day containing `day`.
func (p *PolygonProvider) DayBars(ctx context.Context, sym symbols.NormalizedSymbol, day time.Time) ([]Bar, error) {
	ticker := sym.ProviderSymbols["polygon"]
	if ticker == "" {
		ticker = sym.Canonical
	}
	date := day.UTC().Format("2006-01-02")
	reqURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/minute/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		p.baseURL, ticker, date, date, p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewNetworkError(sym.Canonical, "failed to create request", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(sym.Canonical, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRateLimitError(sym.Canonical, "API rate limit exceeded")
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewBadSymbolError(sym.Canonical, "unknown ticker "+ticker)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, NewProviderError(sym.Canonical, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed polygonAggsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewProviderError(sym.Canonical, "failed to parse response", err)
	}
	if parsed.Error != "" {
		return nil, NewProviderError(sym.Canonical, parsed.Error, nil)
	}

	bars := make([]Bar, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		bars = append(bars, Bar{
			Time:   time.UnixMilli(r.T).UTC(),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		})
	}
	return bars, nil
}
