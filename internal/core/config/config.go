package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RateLimitCfg struct {
	Limits            map[string]int
	Window            time.Duration
	Disabled          bool
	TrustProxyHeaders bool
}

type CacheCfg struct {
	ModelMaxItems    int
	ModelTTL         time.Duration
	ResponseMaxItems int
	ResponseTTL      time.Duration
	// per-endpoint response TTLs, e.g. "stats=60s,hotspots_grid=2m"
	ResponseTTLOvr  map[string]time.Duration
	FeatureVersion  string
	ResponseVersion string
	CleanupInterval time.Duration
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	GeoServerURL    string
	ViolationsLayer string
	ViolationsFile  string
	UpstreamTimeout time.Duration
	SlowThreshold   time.Duration
	CORSOrigins     []string
	HistoryLimit    int
	RateLimit       RateLimitCfg
	Cache           CacheCfg
}

func FromEnv() Config {
	maxItems := func(k string) int {
		n := getint(k, 256)
		if n <= 0 {
			return 256
		}
		return n
	}
	positive := func(k string, def time.Duration) time.Duration {
		d := getduration(k, def)
		if d <= 0 {
			return def
		}
		return d
	}
	history := getint("HISTORY_LIMIT", 500)
	if history <= 0 {
		history = 500
	}

	return Config{
		Addr:            getenv("ADDR", ":8000"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		GeoServerURL:    getenv("GEOSERVER_URL", "http://localhost:8080/geoserver"),
		ViolationsLayer: getenv("VIOLATIONS_LAYER", "traffic:violations"),
		ViolationsFile:  getenv("VIOLATIONS_FILE", ""),
		UpstreamTimeout: positive("UPSTREAM_TIMEOUT", 15*time.Second),
		SlowThreshold:   positive("SLOW_THRESHOLD", 300*time.Millisecond),
		CORSOrigins:     splitList(getenv("CORS_ORIGINS", "http://localhost:3000")),
		HistoryLimit:    history,
		RateLimit: RateLimitCfg{
			Limits: map[string]int{
				"predict": getint("RATE_LIMIT_PREDICT", 30),
				"stats":   getint("RATE_LIMIT_STATS", 60),
				"other":   getint("RATE_LIMIT_OTHER", 60),
			},
			Window:            positive("RATE_LIMIT_WINDOW", 60*time.Second),
			Disabled:          getbool("RATE_LIMIT_DISABLED", false),
			TrustProxyHeaders: getbool("RATE_LIMIT_TRUST_PROXY", false),
		},
		Cache: CacheCfg{
			ModelMaxItems:    maxItems("MODEL_CACHE_MAX_ITEMS"),
			ModelTTL:         positive("MODEL_CACHE_TTL", 10*time.Minute),
			ResponseMaxItems: maxItems("RESPONSE_CACHE_MAX_ITEMS"),
			ResponseTTL:      positive("RESPONSE_CACHE_TTL_DEFAULT", 90*time.Second),
			ResponseTTLOvr:   parseDurationMap(getenv("RESPONSE_CACHE_TTL_OVERRIDES", "")),
			FeatureVersion:   getenv("FEATURE_VERSION", "v1"),
			ResponseVersion:  getenv("RESPONSE_CACHE_VERSION", "v1"),
			CleanupInterval:  positive("CACHE_CLEANUP_INTERVAL", time.Minute),
		},
	}
}

// ResponseTTLFor returns the override for endpoint or the default.
func (c CacheCfg) ResponseTTLFor(endpoint string) time.Duration {
	if d, ok := c.ResponseTTLOvr[endpoint]; ok && d > 0 {
		return d
	}
	return c.ResponseTTL
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// parse "stats=60s,risk=2m" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			out[k] = d
		}
	}
	return out
}
