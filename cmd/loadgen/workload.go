package main

import (
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"sort"
	"time"
)

type BBox struct{ X1, Y1, X2, Y2 float64 }

// String returns the bbox as minLon,minLat,maxLon,maxLat.
func (b BBox) String() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b.X1, b.Y1, b.X2, b.Y2)
}

var routes = []string{
	"/predict/timeseries",
	"/predict/forecast",
	"/predict/risk",
	"/predict/hotspots/grid",
	"/violations/stats",
}

// makeQueries builds a pool of distinct request URLs. The first quarter is
// clustered around a few busy districts so Zipf sampling hits them hardest.
func makeQueries(base string, count int, r *rand.Rand) ([]string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bad target: %w", err)
	}
	centers := [][2]float64{
		{-73.9857, 40.7484}, // Midtown
		{-73.9442, 40.6782}, // Brooklyn
		{-73.8648, 40.8448}, // Bronx
		{-73.7949, 40.7282}, // Queens
	}
	hot := max(8, count/4)

	out := make([]string, 0, count)
	for i := 0; len(out) < count; i++ {
		var b BBox
		if i < hot {
			c := centers[i%len(centers)]
			dx, dy := (r.Float64()-0.5)*0.02, (r.Float64()-0.5)*0.02
			w := 0.02 + r.Float64()*0.02
			b = BBox{c[0] + dx - w/2, c[1] + dy - w/2, c[0] + dx + w/2, c[1] + dy + w/2}
		} else {
			lon, lat := -74.05+r.Float64()*0.35, 40.55+r.Float64()*0.35
			w := 0.01 + r.Float64()*0.05
			b = BBox{lon - w/2, lat - w/2, lon + w/2, lat + w/2}
		}

		q := url.Values{}
		q.Set("bbox", b.String())
		route := routes[i%len(routes)]
		switch route {
		case "/predict/forecast", "/predict/risk":
			q.Set("granularity", []string{"hour", "day"}[i%2])
			q.Set("horizon", fmt.Sprint(6+i%18))
		case "/predict/hotspots/grid":
			q.Set("cell_m", fmt.Sprint([]int{250, 500}[i%2]))
		}
		ru := *u
		ru.Path = u.Path + route
		ru.RawQuery = q.Encode()
		out = append(out, ru.String())
	}
	return out, nil
}

type sample struct {
	Latency  time.Duration
	Status   int
	CacheHit bool
	Err      string
}

type summary struct {
	StartTime     time.Time     `json:"start"`
	EndTime       time.Time     `json:"end"`
	DurationSec   float64       `json:"duration_sec"`
	TotalRequests int64         `json:"total"`
	ByStatus      map[int]int64 `json:"by_status"`
	Transport     int64         `json:"transport_errors"`
	CacheHitRatio float64       `json:"response_cache_hit_ratio"`
	ThroughputRPS float64       `json:"throughput_rps"`
	P50Ms         float64       `json:"p50_ms"`
	P95Ms         float64       `json:"p95_ms"`
	P99Ms         float64       `json:"p99_ms"`
	Concurrency   int           `json:"concurrency"`
	Queries       int           `json:"queries"`
	TargetURL     string        `json:"target"`
}

type aggregate struct {
	total     int64
	byStatus  map[int]int64
	transport int64
	hits      int64
	answered  int64
	latMs     []float64
}

func newAggregate() *aggregate {
	return &aggregate{byStatus: map[int]int64{}}
}

// add counts one sample. Only answered requests (200/304) feed latency and
// the hit ratio; 429s would otherwise skew both toward zero.
func (a *aggregate) add(s sample) {
	a.total++
	if s.Err != "" {
		a.transport++
		return
	}
	a.byStatus[s.Status]++
	if s.Status == 200 || s.Status == 304 {
		a.answered++
		if s.CacheHit {
			a.hits++
		}
		a.latMs = append(a.latMs, float64(s.Latency.Microseconds())/1000.0)
	}
}

func (a *aggregate) hitRatio() float64 {
	if a.answered == 0 {
		return 0
	}
	return float64(a.hits) / float64(a.answered)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}

func (a *aggregate) summarize(start, end time.Time) summary {
	sort.Float64s(a.latMs)
	elapsed := end.Sub(start).Seconds()
	s := summary{
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		DurationSec:   elapsed,
		TotalRequests: a.total,
		ByStatus:      a.byStatus,
		Transport:     a.transport,
		CacheHitRatio: a.hitRatio(),
		P50Ms:         percentile(a.latMs, 50),
		P95Ms:         percentile(a.latMs, 95),
		P99Ms:         percentile(a.latMs, 99),
	}
	if elapsed > 0 {
		s.ThroughputRPS = float64(a.total) / elapsed
	}
	return s
}
