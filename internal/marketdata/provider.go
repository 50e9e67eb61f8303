package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeproof/engine/internal/symbols"
)

// Bar is one OHLC bar at minute resolution, normalized across providers.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range is the market range covering a single instant, taken from the bar
// whose timestamp is closest to the requested time.
type Range struct {
	Low      float64   `json:"low"`
	High     float64   `json:"high"`
	Open     float64   `json:"open"`
	Close    float64   `json:"close"`
	Provider string    `json:"provider"`
	BarTime  time.Time `json:"bar_time"`
}

// AttemptStatus reports how a provider call went for one range lookup.
type AttemptStatus string

const (
	AttemptSuccess      AttemptStatus = "success"
	AttemptEmpty        AttemptStatus = "empty"
	AttemptError        AttemptStatus = "error"
	AttemptNotAttempted AttemptStatus = "not_attempted"
)

// ProviderAttempt records the outcome of one provider in a fallback chain.
type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Status   AttemptStatus `json:"status"`
	Detail   string        `json:"detail,omitempty"`
}

// RangeProvider fetches historical minute bars for the calendar day containing
// an instant. Implementations own their HTTP specifics and symbol mapping;
// the gateway owns caching, rate limiting, retries, and fallback ordering.
type RangeProvider interface {
	Name() string
	DayBars(ctx context.Context, sym symbols.NormalizedSymbol, day time.Time) ([]Bar, error)
}

// ProviderError classifies provider failures.
type ProviderError struct {
	Type    string // "network", "rate_limit", "provider_error", "bad_symbol"
	Symbol  string
	Message string
	Cause   error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Type, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Symbol, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func NewNetworkError(symbol, message string, cause error) *ProviderError {
	return &ProviderError{Type: "network", Symbol: symbol, Message: message, Cause: cause}
}

func NewRateLimitError(symbol, message string) *ProviderError {
	return &ProviderError{Type: "rate_limit", Symbol: symbol, Message: message}
}

func NewProviderError(symbol, message string, cause error) *ProviderError {
	return &ProviderError{Type: "provider_error", Symbol: symbol, Message: message, Cause: cause}
}

func NewBadSymbolError(symbol, message string) *ProviderError {
	return &ProviderError{Type: "bad_symbol", Symbol: symbol, Message: message}
}
