package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr string `yaml:"addr"`
}

type Database struct {
	Path string `yaml:"path"` // sqlite file; empty means in-memory store
}

type AlphaVantage struct {
	APIKey             string `yaml:"api_key"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

type Polygon struct {
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Providers struct {
	AlphaVantage AlphaVantage `yaml:"alphavantage"`
	Polygon      Polygon      `yaml:"polygon"`
}

type Gateway struct {
	Attempts             int `yaml:"attempts"`
	BackoffMs            int `yaml:"backoff_ms"`
	HistoricalTTLMinutes int `yaml:"historical_ttl_minutes"`
	LiveTTLSeconds       int `yaml:"live_ttl_seconds"`
}

type Verification struct {
	BatchSize    int `yaml:"batch_size"`
	GroupDelayMs int `yaml:"group_delay_ms"`
}

type Root struct {
	Server       Server       `yaml:"server"`
	Database     Database     `yaml:"database"`
	Providers    Providers    `yaml:"providers"`
	Gateway      Gateway      `yaml:"gateway"`
	Verification Verification `yaml:"verification"`
}

// Load reads a yaml config file and applies defaults. API keys from the
// environment (ALPHAVANTAGE_API_KEY, POLYGON_API_KEY) win over the file so
// keys stay out of checked-in configs.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

// Default is the configuration used when no file is given.
func Default() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.Providers.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Providers.Polygon.APIKey = v
	}
	if c.Providers.AlphaVantage.RateLimitPerMinute == 0 {
		c.Providers.AlphaVantage.RateLimitPerMinute = 5 // free tier
	}
	if c.Providers.AlphaVantage.TimeoutSeconds == 0 {
		c.Providers.AlphaVantage.TimeoutSeconds = 10
	}
	if c.Providers.Polygon.TimeoutSeconds == 0 {
		c.Providers.Polygon.TimeoutSeconds = 10
	}
	if c.Gateway.Attempts == 0 {
		c.Gateway.Attempts = 2
	}
	if c.Gateway.BackoffMs == 0 {
		c.Gateway.BackoffMs = 500
	}
	if c.Gateway.HistoricalTTLMinutes == 0 {
		c.Gateway.HistoricalTTLMinutes = 30
	}
	if c.Gateway.LiveTTLSeconds == 0 {
		c.Gateway.LiveTTLSeconds = 15
	}
	if c.Verification.BatchSize == 0 {
		c.Verification.BatchSize = 5
	}
	if c.Verification.GroupDelayMs == 0 {
		c.Verification.GroupDelayMs = 1000
	}
}

func (g Gateway) Backoff() time.Duration { return time.Duration(g.BackoffMs) * time.Millisecond }

func (g Gateway) HistoricalTTL() time.Duration {
	return time.Duration(g.HistoricalTTLMinutes) * time.Minute
}

func (g Gateway) LiveTTL() time.Duration { return time.Duration(g.LiveTTLSeconds) * time.Second }

func (v Verification) GroupDelay() time.Duration {
	return time.Duration(v.GroupDelayMs) * time.Millisecond
}
