package symbols

import (
	"fmt"
	"regexp"
	"strings"
)

// AssetClass buckets an instrument for pip/tick math and verification tolerances.
type AssetClass string

const (
	ClassForex       AssetClass = "forex"
	ClassCrypto      AssetClass = "crypto"
	ClassStock       AssetClass = "stock"
	ClassMetal       AssetClass = "metal"
	ClassIndex       AssetClass = "index"
	ClassCommodity   AssetClass = "commodity"
	ClassUnsupported AssetClass = "unsupported"
)

// NormalizedSymbol is the canonical identity derived from a raw broker ticker.
// Derivation is deterministic for a given (raw, hint) pair, so results are cacheable.
type NormalizedSymbol struct {
	Raw             string            `json:"raw"`
	Canonical       string            `json:"canonical"` // cleaned ticker, e.g. EURUSD, BTCUSD, AAPL
	Class           AssetClass        `json:"asset_class"`
	Base            string            `json:"base,omitempty"`
	Quote           string            `json:"quote,omitempty"`
	Supported       bool              `json:"supported"`
	Reason          string            `json:"reason,omitempty"` // set when unsupported
	PipSize         float64           `json:"pip_size"`         // minimum quoted increment
	PipValue        float64           `json:"pip_value"`        // value of one pip/tick per unit
	ProviderSymbols map[string]string `json:"provider_symbols,omitempty"`
}

// Broker/exchange prefixes commonly attached by charting platforms and
// browser-extension feeds. Stripped before classification.
var venuePrefixes = []string{
	"BINANCE:", "COINBASE:", "KRAKEN:", "BYBIT:", "BITFINEX:", "KUCOIN:", "OKX:",
	"OANDA:", "FX:", "FX_IDC:", "FOREXCOM:", "PEPPERSTONE:", "ICMARKETS:", "CAPITALCOM:",
	"NASDAQ:", "NYSE:", "AMEX:", "ARCA:", "BATS:", "TVC:", "CME:", "CBOT:", "NYMEX:", "COMEX:",
}

// ISO currency codes accepted as forex legs.
var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true, "AUD": true,
	"NZD": true, "CAD": true, "SEK": true, "NOK": true, "DKK": true, "SGD": true,
	"HKD": true, "MXN": true, "ZAR": true, "TRY": true, "PLN": true, "CNH": true,
	"CZK": true, "HUF": true, "THB": true,
}

// Crypto bases recognized when glued to a quote suffix (BTCUSDT, SOLUSD, ...).
var cryptoBases = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true, "ADA": true, "DOGE": true,
	"DOT": true, "LTC": true, "BCH": true, "LINK": true, "AVAX": true, "MATIC": true,
	"ATOM": true, "UNI": true, "XLM": true, "NEAR": true, "ARB": true, "OP": true,
	"SHIB": true, "PEPE": true, "TRX": true, "TON": true, "SUI": true, "APT": true,
	"BNB": true, "ETC": true, "FIL": true, "INJ": true, "AAVE": true,
}

// Quote suffixes accepted for glued crypto pairs, longest first so USDT wins over USD.
var cryptoQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "GBP", "BTC", "ETH"}

var metalPrefixes = []string{"XAU", "XAG", "XPT", "XPD"}

var indexTickers = map[string]bool{
	"US30": true, "US100": true, "US500": true, "US2000": true, "NAS100": true,
	"SPX500": true, "SPX": true, "NDX": true, "DJI": true, "DJ30": true,
	"GER40": true, "GER30": true, "DAX": true, "UK100": true, "FTSE": true,
	"JPN225": true, "NIKKEI": true, "AUS200": true, "FRA40": true, "CAC40": true,
	"ESP35": true, "EU50": true, "STOXX50": true, "HK50": true, "VIX": true,
}

var commodityTickers = map[string]bool{
	"USOIL": true, "UKOIL": true, "WTI": true, "BRENT": true, "XTI": true, "XBR": true,
	"NATGAS": true, "NGAS": true, "XNG": true, "COPPER": true, "COCOA": true,
	"COFFEE": true, "SUGAR": true, "COTTON": true, "WHEAT": true, "CORN": true,
	"SOYBEAN": true,
}

var (
	stockPattern   = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z]{1,2})?$`)
	futuresPattern = regexp.MustCompile(`^[A-Z]{1,3}[FGHJKMNQUVXZ]\d{1,2}$`)
)

// Normalize maps a raw broker ticker plus an optional instrument-type hint to a
// canonical asset identity. It never fails: anything it cannot place comes back
// with Supported=false and a reason.
//
// A supplied hint is authoritative and skips pattern detection entirely, since
// string classification of tickers is heuristic (a 6-letter stock ticker can look
// like a currency pair).
func Normalize(raw, hint string) NormalizedSymbol {
	ns := NormalizedSymbol{Raw: raw}

	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if cleaned == "" {
		ns.Class = ClassUnsupported
		ns.Reason = "empty symbol"
		return ns
	}
	for _, p := range venuePrefixes {
		if strings.HasPrefix(cleaned, p) {
			cleaned = strings.TrimPrefix(cleaned, p)
			break
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		ns.Class = ClassUnsupported
		ns.Reason = "empty symbol after venue prefix"
		return ns
	}

	if hint != "" {
		return classifyByHint(ns, cleaned, strings.ToLower(strings.TrimSpace(hint)))
	}
	return classifyByPattern(ns, cleaned)
}

func classifyByHint(ns NormalizedSymbol, cleaned, hint string) NormalizedSymbol {
	switch hint {
	case "forex", "fx", "currency":
		base, quote := splitPair(cleaned)
		return finish(ns, ClassForex, base+quote, base, quote)
	case "crypto", "cryptocurrency":
		base, quote := splitPair(cleaned)
		return finish(ns, ClassCrypto, base+quote, base, quote)
	case "stock", "stocks", "equity", "etf":
		return finish(ns, ClassStock, strings.ReplaceAll(cleaned, "-", "."), "", "")
	case "metal", "metals":
		base, quote := splitPair(cleaned)
		return finish(ns, ClassMetal, base+quote, base, quote)
	case "index", "indices":
		return finish(ns, ClassIndex, cleaned, "", "")
	case "commodity", "commodities":
		return finish(ns, ClassCommodity, cleaned, "", "")
	case "futures", "future", "option", "options":
		ns.Canonical = cleaned
		ns.Class = ClassUnsupported
		ns.Reason = fmt.Sprintf("instrument type %q not supported", hint)
		return ns
	default:
		// Unknown hint: fall through to detection rather than reject.
		return classifyByPattern(ns, cleaned)
	}
}

func classifyByPattern(ns NormalizedSymbol, cleaned string) NormalizedSymbol {
	// Delimited pairs first: EUR/USD, BTC-USD.
	if strings.ContainsAny(cleaned, "/-") {
		base, quote := splitPair(cleaned)
		switch {
		case cryptoBases[base]:
			return finish(ns, ClassCrypto, base+quote, base, quote)
		case hasMetalPrefix(base):
			return finish(ns, ClassMetal, base+quote, base, quote)
		case isoCurrencies[base] && isoCurrencies[quote]:
			return finish(ns, ClassForex, base+quote, base, quote)
		case quote != "" && (isoCurrencies[quote] || quote == "USDT" || quote == "USDC"):
			// Unrecognized base against a fiat/stable quote: most likely a long-tail coin.
			return finish(ns, ClassCrypto, base+quote, base, quote)
		}
		ns.Canonical = base + quote
		ns.Class = ClassUnsupported
		ns.Reason = "unrecognized pair " + cleaned
		return ns
	}

	if hasMetalPrefix(cleaned) {
		base := cleaned[:3]
		quote := strings.TrimPrefix(cleaned, base)
		if quote == "" {
			quote = "USD"
		}
		return finish(ns, ClassMetal, base+quote, base, quote)
	}
	if indexTickers[cleaned] {
		return finish(ns, ClassIndex, cleaned, "", "")
	}
	if commodityTickers[cleaned] {
		return finish(ns, ClassCommodity, cleaned, "", "")
	}

	// Glued crypto pair: known base + recognized quote suffix.
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(cleaned, q) && len(cleaned) > len(q) {
			base := strings.TrimSuffix(cleaned, q)
			if cryptoBases[base] {
				return finish(ns, ClassCrypto, cleaned, base, q)
			}
		}
	}

	// 6-letter ISO pair: EURUSD.
	if len(cleaned) == 6 && isAlpha(cleaned) {
		base, quote := cleaned[:3], cleaned[3:]
		if isoCurrencies[base] && isoCurrencies[quote] {
			return finish(ns, ClassForex, cleaned, base, quote)
		}
	}

	// Futures contracts (ESZ4, continuous 1!/=F notations) are out of scope.
	if futuresPattern.MatchString(cleaned) || strings.HasSuffix(cleaned, "!") || strings.HasSuffix(cleaned, "=F") {
		ns.Canonical = cleaned
		ns.Class = ClassUnsupported
		ns.Reason = "futures contracts not supported"
		return ns
	}

	// Short alphabetic ticker defaults to stock.
	if stockPattern.MatchString(cleaned) {
		return finish(ns, ClassStock, cleaned, "", "")
	}

	ns.Canonical = cleaned
	ns.Class = ClassUnsupported
	ns.Reason = "unrecognized symbol format " + cleaned
	return ns
}

func finish(ns NormalizedSymbol, class AssetClass, canonical, base, quote string) NormalizedSymbol {
	ns.Class = class
	ns.Canonical = canonical
	ns.Base = base
	ns.Quote = quote
	ns.Supported = true
	ns.PipSize = pipSize(class, canonical, quote)
	ns.PipValue = pipValueFor(class, ns.PipSize)
	ns.ProviderSymbols = providerSymbols(class, canonical, base, quote)
	return ns
}

// pipSize returns the minimum quoted increment used for pip/tick math.
func pipSize(class AssetClass, canonical, quote string) float64 {
	switch class {
	case ClassForex:
		if quote == "JPY" {
			return 0.01
		}
		return 0.0001
	case ClassMetal:
		if strings.HasPrefix(canonical, "XAU") {
			return 0.1
		}
		return 0.01
	default:
		return 0.01
	}
}

// pipValueFor is the monetary value of one pip/tick per unit of quantity.
// Forex pips are worth their size in quote currency; elsewhere a tick is worth 1.
func pipValueFor(class AssetClass, pip float64) float64 {
	if class == ClassForex {
		return pip
	}
	return 1.0
}

func providerSymbols(class AssetClass, canonical, base, quote string) map[string]string {
	ps := map[string]string{"alphavantage": canonical, "polygon": canonical}
	switch class {
	case ClassForex, ClassMetal:
		ps["polygon"] = "C:" + canonical
	case ClassCrypto:
		q := quote
		// Polygon quotes crypto against fiat; stables map to their fiat leg.
		if q == "USDT" || q == "USDC" || q == "BUSD" || q == "TUSD" {
			q = "USD"
		}
		ps["polygon"] = "X:" + base + q
	case ClassIndex:
		ps["polygon"] = "I:" + canonical
	}
	return ps
}

func splitPair(s string) (base, quote string) {
	for _, sep := range []string{"/", "-", "_"} {
		if strings.Contains(s, sep) {
			parts := strings.SplitN(s, sep, 2)
			return parts[0], parts[1]
		}
	}
	if len(s) == 6 && isAlpha(s) {
		return s[:3], s[3:]
	}
	// Glued pair with a known quote suffix, else treat the whole thing as base/USD.
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	return s, "USD"
}

func hasMetalPrefix(s string) bool {
	for _, p := range metalPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
