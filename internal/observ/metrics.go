package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration as a histogram observation in milliseconds.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// Basic JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus summarizes engine health for the /healthz endpoint.
type HealthStatus struct {
	Status    string        `json:"status"` // "healthy", "degraded"
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics holds the aggregates operators actually look at.
type HealthMetrics struct {
	ProviderRequests   int64   `json:"provider_requests"`
	ProviderErrors     int64   `json:"provider_errors"`
	ProviderErrorRate  float64 `json:"provider_error_rate"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	LotsOpened         int64   `json:"lots_opened"`
	LotsClosed         int64   `json:"lots_closed"`
	TradesVerified     int64   `json:"trades_verified"`
	RateLimitWaitP95Ms int64   `json:"rate_limit_wait_p95_ms"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

func sumCounter(name string) int64 {
	var total int64
	if m, ok := reg.counters[name]; ok {
		for _, c := range m {
			total += c
		}
	}
	return total
}

func histP95(name string) int64 {
	m, ok := reg.hist[name]
	if !ok {
		return 0
	}
	var all []float64
	for _, samples := range m {
		all = append(all, samples...)
	}
	if len(all) == 0 {
		return 0
	}
	sort.Float64s(all)
	idx := int(float64(len(all)) * 0.95)
	if idx >= len(all) {
		idx = len(all) - 1
	}
	return int64(all[idx])
}

func calculateHealthMetrics() HealthMetrics {
	m := HealthMetrics{
		ProviderRequests:   sumCounter("provider_requests_total"),
		ProviderErrors:     sumCounter("provider_errors_total"),
		LotsOpened:         sumCounter("ledger_lots_opened_total"),
		LotsClosed:         sumCounter("ledger_lots_closed_total"),
		TradesVerified:     sumCounter("verify_trades_total"),
		RateLimitWaitP95Ms: histP95("provider_rate_wait_ms"),
	}
	if m.ProviderRequests > 0 {
		m.ProviderErrorRate = float64(m.ProviderErrors) / float64(m.ProviderRequests)
	}
	hits := sumCounter("range_cache_hits_total")
	misses := sumCounter("range_cache_misses_total")
	if hits+misses > 0 {
		m.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	return m
}

// HealthHandler reports overall engine health. Degraded means the providers
// are erroring on more than 10% of calls over the life of the process.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()

		metrics := calculateHealthMetrics()
		status := "healthy"
		statusCode := http.StatusOK
		if metrics.ProviderRequests > 100 && metrics.ProviderErrorRate > 0.1 {
			status = "degraded"
			statusCode = http.StatusPartialContent
		}

		health := HealthStatus{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Metrics:   metrics,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

// Health is the liveness probe; it always answers ok while the process is up.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
