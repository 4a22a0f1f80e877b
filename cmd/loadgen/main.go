// Command loadgen replays a Zipf-skewed mix of analytics queries against a
// running api and reports status mix, cache hit ratio and latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Config struct {
	TargetURL      string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	QueryCount     int
	OutputPrefix   string
	RequestTimeout time.Duration
	ClientIDs      int
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8000", "api base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.QueryCount, "queries", 128, "Distinct queries in pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Summary file prefix")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.IntVar(&cfg.ClientIDs, "clients", 0, "Spread requests over N X-Forwarded-For identities (needs RATE_LIMIT_TRUST_PROXY)")
	flag.Parse()
	return cfg
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}

	seed := time.Now().UnixNano()
	queries, err := makeQueries(cfg.TargetURL, cfg.QueryCount, rand.New(rand.NewSource(seed)))
	if err != nil {
		log.Fatal(err)
	}
	if len(queries) == 0 {
		log.Fatalf("no queries generated")
	}
	imax := uint64(len(queries)) - 1

	clients := make([]string, cfg.ClientIDs)
	for i := range clients {
		// documentation range addresses, one per simulated client
		clients[i] = fmt.Sprintf("198.51.100.%d", i%254+1)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samples := make(chan sample, 4096)
	done := make(chan *aggregate, 1)
	go func() {
		agg := newAggregate()
		for s := range samples {
			agg.add(s)
		}
		done <- agg
	}()

	start := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) queries=%d clients=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(queries), cfg.ClientIDs)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				v := zipf.Uint64()
				if v > uint64(math.MaxInt) || int(v) >= len(queries) {
					continue
				}
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, queries[v], nil)
				req.Header.Set("Accept", "application/json")
				req.Header.Set("X-Request-ID", uuid.NewString())
				if len(clients) > 0 {
					req.Header.Set("X-Forwarded-For", clients[r.Intn(len(clients))])
				}

				t0 := time.Now()
				resp, err := httpClient.Do(req)
				s := sample{Latency: time.Since(t0)}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.Err = err.Error()
				} else {
					s.Status = resp.StatusCode
					s.CacheHit = resp.Header.Get("X-Response-Cache") == "HIT"
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}

				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		wg.Wait()
		close(samples)
	}()

	agg := <-done
	sum := agg.summarize(start, time.Now())
	sum.Concurrency = cfg.Concurrency
	sum.Queries = len(queries)
	sum.TargetURL = cfg.TargetURL

	path := fmt.Sprintf("%s_%s_summary.json", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))
	if f, err := os.Create(filepath.Clean(path)); err == nil {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		_ = f.Close()
		log.Printf("wrote %s", path)
	}

	log.Printf("done: total=%d status=%v transport_err=%d hit_ratio=%.2f thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		sum.TotalRequests, sum.ByStatus, sum.Transport, sum.CacheHitRatio, sum.ThroughputRPS, sum.P50Ms, sum.P95Ms, sum.P99Ms)
}
