package cmd

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tradeproof/engine/internal/config"
	"github.com/tradeproof/engine/internal/ledger"
	"github.com/tradeproof/engine/internal/marketdata"
	"github.com/tradeproof/engine/internal/symbols"
	"github.com/tradeproof/engine/internal/verify"
)

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg      config.Root
	symbols  *symbols.Cache
	ledger   *ledger.Ledger
	verifier *verify.Engine

	store ledger.Store
}

// buildApp wires config into the component graph. The market data gateway is
// only constructed when at least one provider key is present; ingest-only
// runs work without any keys.
func buildApp() (*app, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	a := &app{cfg: cfg, symbols: symbols.NewCache()}

	if cfg.Database.Path != "" {
		store, err := ledger.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		a.store = store
	} else {
		a.store = ledger.NewMemoryStore()
	}
	a.ledger = ledger.New(a.store, a.symbols)

	gateway, err := buildGateway(cfg)
	if err != nil {
		return nil, err
	}
	if gateway != nil {
		a.verifier = verify.NewEngine(gateway, a.symbols, verify.Config{
			BatchSize:  cfg.Verification.BatchSize,
			GroupDelay: cfg.Verification.GroupDelay(),
		})
	}
	return a, nil
}

func buildGateway(cfg config.Root) (*marketdata.Gateway, error) {
	var providers []marketdata.RangeProvider

	if key := cfg.Providers.AlphaVantage.APIKey; key != "" {
		limiter := rate.NewLimiter(rate.Limit(float64(cfg.Providers.AlphaVantage.RateLimitPerMinute)/60.0), 1)
		av, err := marketdata.NewAlphaVantageProvider(marketdata.AlphaVantageConfig{
			APIKey:         key,
			TimeoutSeconds: cfg.Providers.AlphaVantage.TimeoutSeconds,
		}, limiter)
		if err != nil {
			return nil, err
		}
		providers = append(providers, av)
	}
	if key := cfg.Providers.Polygon.APIKey; key != "" {
		pg, err := marketdata.NewPolygonProvider(marketdata.PolygonConfig{
			APIKey:         key,
			TimeoutSeconds: cfg.Providers.Polygon.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, pg)
	}
	if len(providers) == 0 {
		return nil, nil
	}

	return marketdata.NewGateway(providers, marketdata.GatewayConfig{
		Attempts:      cfg.Gateway.Attempts,
		Backoff:       cfg.Gateway.Backoff(),
		HistoricalTTL: cfg.Gateway.HistoricalTTL(),
		LiveTTL:       cfg.Gateway.LiveTTL(),
	}), nil
}

func (a *app) close() {
	_ = a.store.Close()
}
