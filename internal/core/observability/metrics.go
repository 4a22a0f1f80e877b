// Package observability holds the service-level Prometheus collectors and the
// helpers the request path uses to record into them.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries removed by expiry or capacity.",
		},
		[]string{"cache", "reason"},
	)

	cacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Entries removed by explicit invalidation.",
		},
		[]string{"cache", "source"},
	)

	cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of entries per cache.",
		},
		[]string{"cache"},
	)

	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Admission decisions by limiter group.",
		},
		[]string{"group", "decision"},
	)

	circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		cacheLookupsTotal,
		cacheEvictionsTotal,
		cacheInvalidationsTotal,
		cacheEntries,
		rateLimitDecisionsTotal,
		circuitState,
	}
}

// Init registers the collectors with reg and switches recording on or off.
// Registering into a registry that already holds them is a no-op.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func Enabled() bool { return enabled.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream, outcome string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveCacheLookup(cache string, hit bool) {
	if !enabled.Load() {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, outcome).Inc()
}

func ObserveCacheEvictions(cache, reason string, n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheEvictionsTotal.WithLabelValues(cache, reason).Add(float64(n))
}

func ObserveCacheInvalidation(cache, source string, n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	cacheInvalidationsTotal.WithLabelValues(cache, source).Add(float64(n))
}

func SetCacheEntries(cache string, n int) {
	if !enabled.Load() {
		return
	}
	cacheEntries.WithLabelValues(cache).Set(float64(n))
}

func ObserveRateLimit(group string, allowed bool) {
	if !enabled.Load() {
		return
	}
	d := "allowed"
	if !allowed {
		d = "blocked"
	}
	rateLimitDecisionsTotal.WithLabelValues(group, d).Inc()
}

func SetCircuitState(name string, state int) {
	if !enabled.Load() {
		return
	}
	circuitState.WithLabelValues(name).Set(float64(state))
}
