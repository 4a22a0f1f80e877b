package analytics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/cache/artifacts"
	"github.com/achintya924/Traffic-lyt/internal/cache/respcache"
	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/logger"
	h3mapper "github.com/achintya924/Traffic-lyt/internal/mapper/h3"
	"github.com/achintya924/Traffic-lyt/internal/predict"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

var anchor = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// countingSource records how often each query-layer operation runs.
type countingSource struct {
	inner  violations.Source
	ranges atomic.Int32
	points atomic.Int32
	err    error
}

func (c *countingSource) TimeRange(ctx context.Context, f model.Filters) (*time.Time, *time.Time, error) {
	c.ranges.Add(1)
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.inner.TimeRange(ctx, f)
}

func (c *countingSource) Points(ctx context.Context, f model.Filters) ([]model.Point, error) {
	c.points.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Points(ctx, f)
}

func fixture() []model.Point {
	var pts []model.Point
	// three days of hourly activity ending exactly at the anchor
	for i := 0; i < 72; i++ {
		ts := anchor.Add(-time.Duration(i) * time.Hour)
		for j := 0; j <= i%4; j++ {
			pts = append(pts, model.Point{Lon: -74.0, Lat: 40.7, OccurredAt: ts, ViolationType: "speeding"})
		}
	}
	// older baseline activity in a second spot, outside the narrower test bbox
	for d := 10; d < 30; d++ {
		pts = append(pts, model.Point{Lon: -73.85, Lat: 40.85, OccurredAt: anchor.AddDate(0, 0, -d), ViolationType: "parking"})
	}
	return pts
}

type harness struct {
	svc *Service
	src *countingSource
	now *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	h := &harness{now: &now}
	clock := func() time.Time { return *h.now }
	h.src = &countingSource{inner: violations.NewMemorySource(fixture())}
	models := artifacts.New(artifacts.Options{MaxItems: 32, Now: clock})
	responses := respcache.New(respcache.Options[*Payload]{MaxItems: 32, Sizer: PayloadSizer(), Now: clock})
	h.svc = New(h.src, h3mapper.New(), models, responses, Options{
		ModelTTL:    10 * time.Minute,
		ResponseTTL: func(string) time.Duration { return 90 * time.Second },
	})
	return h
}

func riskQuery(bbox string) ForecastQuery {
	return ForecastQuery{
		SeriesQuery: SeriesQuery{Filters: model.Filters{BBox: bbox}, Granularity: model.GranularityHour},
		Horizon:     24,
	}
}

func TestRisk_ResponseKeyAnchoredAndReplayed(t *testing.T) {
	h := newHarness(t)
	ctx, outcome := logger.WithOutcome(context.Background())

	a, err := h.svc.Risk(ctx, riskQuery("-74.1,40.6,-73.9,40.8"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Meta.ResponseCache.Hit || a.Meta.ModelCache == nil || a.Meta.ModelCache.Hit {
		t.Fatalf("first request meta=%+v", a.Meta)
	}
	if got := *a.Meta.AnchorTS; got != "2024-01-15T12:00:00Z" {
		t.Fatalf("anchor=%s", got)
	}
	if a.Meta.ResponseCache.TTLSeconds != 90 || len(a.Meta.ResponseCache.KeyHash) != 12 {
		t.Fatalf("response flag=%+v", a.Meta.ResponseCache)
	}
	if outcome.Fields()["response_cache_hit"] {
		t.Fatalf("outcome marked a hit on first request")
	}
	pointsAfterA := h.src.points.Load()

	*h.now = h.now.Add(30 * time.Second)
	a2, err := h.svc.Risk(context.Background(), riskQuery("-74.1,40.6,-73.9,40.8"))
	if err != nil {
		t.Fatal(err)
	}
	if !a2.Meta.ResponseCache.Hit || a2.Meta.ResponseCache.KeyHash != a.Meta.ResponseCache.KeyHash {
		t.Fatalf("replay meta=%+v want hit on %s", a2.Meta.ResponseCache, a.Meta.ResponseCache.KeyHash)
	}
	if a2.Meta.ResponseCache.TTLSeconds != 60 {
		t.Fatalf("remaining ttl=%v want 60", a2.Meta.ResponseCache.TTLSeconds)
	}
	if h.src.points.Load() != pointsAfterA {
		t.Fatalf("response hit reached the query layer")
	}
	if string(a2.Data) != string(a.Data) || a2.ETag != a.ETag {
		t.Fatalf("replay payload differs")
	}

	b, err := h.svc.Risk(context.Background(), riskQuery("-74.2,40.5,-73.8,40.9"))
	if err != nil {
		t.Fatal(err)
	}
	if b.Meta.ResponseCache.Hit || b.Meta.ResponseCache.KeyHash == a.Meta.ResponseCache.KeyHash {
		t.Fatalf("different bbox reused key %s", b.Meta.ResponseCache.KeyHash)
	}

	var data riskData
	if err := json.Unmarshal(a.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Forecast) != 24 || data.HistoryPoints != 72 {
		t.Fatalf("risk data: forecast=%d history=%d", len(data.Forecast), data.HistoryPoints)
	}
	if !data.Forecast[0].TS.Equal(anchor.Add(time.Hour)) {
		t.Fatalf("first forecast ts=%v", data.Forecast[0].TS)
	}
}

func TestForecast_SharesFitAcrossHorizons(t *testing.T) {
	h := newHarness(t)
	q := riskQuery("")
	q.Horizon = 6

	first, err := h.svc.Forecast(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	q.Horizon = 12
	second, err := h.svc.Forecast(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if second.Meta.ResponseCache.Hit {
		t.Fatalf("different horizon must be a response miss")
	}
	if second.Meta.ModelCache == nil || !second.Meta.ModelCache.Hit {
		t.Fatalf("fitted model not reused: %+v", second.Meta.ModelCache)
	}
	if second.Meta.ModelCache.KeyHash != first.Meta.ModelCache.KeyHash {
		t.Fatalf("model key changed with horizon")
	}

	var data forecastData
	if err := json.Unmarshal(second.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.ForecastPoints != 12 || data.Model.Name != predict.ModelMA || data.Model.Window != predict.DefaultWindow {
		t.Fatalf("forecast data=%+v", data.Model)
	}
}

func TestCachesInvalidateIndependently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := riskQuery("-74.1,40.6,-73.9,40.8")
	if _, err := h.svc.Risk(ctx, q); err != nil {
		t.Fatal(err)
	}

	got := h.svc.Invalidate(TargetModel, EndpointRisk, "test")
	if got.Model != 1 || got.Response != 0 {
		t.Fatalf("model invalidation=%+v", got)
	}
	res, _ := h.svc.Risk(ctx, q)
	if !res.Meta.ResponseCache.Hit {
		t.Fatalf("model invalidation dropped the cached response")
	}

	got = h.svc.Invalidate(TargetResponse, EndpointRisk, "test")
	if got.Response != 1 || got.Model != 0 {
		t.Fatalf("response invalidation=%+v", got)
	}
	res, _ = h.svc.Risk(ctx, q)
	if res.Meta.ResponseCache.Hit || res.Meta.ModelCache.Hit {
		t.Fatalf("after both invalidations: %+v", res.Meta)
	}

	// the refill above put the fit back; dropping responses keeps it
	h.svc.Invalidate(TargetResponse, "", "test")
	res, _ = h.svc.Risk(ctx, q)
	if res.Meta.ResponseCache.Hit || !res.Meta.ModelCache.Hit {
		t.Fatalf("response-only flush: %+v", res.Meta)
	}

	st := h.svc.CacheStats()
	if st.Model.Keys != 1 || st.Response.Keys != 1 || st.Response.Size == 0 {
		t.Fatalf("stats=%+v", st)
	}

	if n := h.svc.InvalidatePrefix(TargetAll, "resp:risk:", "test"); n.Response != 1 || n.Model != 0 {
		t.Fatalf("prefix invalidation=%+v", n)
	}
	if n := h.svc.InvalidatePrefix(TargetAll, "risk:", "test"); n.Model != 1 || n.Response != 0 {
		t.Fatalf("model prefix invalidation=%+v", n)
	}
}

func TestNoDataScope(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Timeseries(context.Background(), SeriesQuery{Filters: model.Filters{ViolationType: "towing"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Meta.Message == "" || res.Meta.AnchorTS != nil {
		t.Fatalf("meta=%+v", res.Meta)
	}
	var data seriesData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Points != 0 || data.Granularity != model.GranularityHour {
		t.Fatalf("data=%+v", data)
	}

	hot, err := h.svc.Hotspots(context.Background(), HotspotQuery{Filters: model.Filters{ViolationType: "towing"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(hot.Data) == "" || hot.Meta.EffectiveWindow.StartTS != nil {
		t.Fatalf("hotspots meta=%+v", hot.Meta)
	}
}

func TestHotspotsAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hot, err := h.svc.Hotspots(ctx, HotspotQuery{})
	if err != nil {
		t.Fatal(err)
	}
	var data hotspotData
	if err := json.Unmarshal(hot.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Resolution != 9 || data.CellM != predict.DefaultCellM || len(data.Cells) != 2 {
		t.Fatalf("hotspots=%+v", data)
	}
	if data.Cells[0].RiskLevel != predict.LevelHigh || data.Cells[1].Score != 0 {
		t.Fatalf("cells=%+v", data.Cells)
	}
	// the effective window starts where the baseline starts
	if hot.Meta.EffectiveWindow.StartTS == nil || *hot.Meta.EffectiveWindow.StartTS != *data.Baseline.StartTS {
		t.Fatalf("effective window=%+v baseline=%+v", hot.Meta.EffectiveWindow, data.Baseline)
	}

	st, err := h.svc.Stats(ctx, model.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	var sum predict.Summary
	if err := json.Unmarshal(st.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total != len(fixture()) || sum.TopTypes[0].ViolationType != "speeding" {
		t.Fatalf("stats=%+v", sum)
	}
	if st.Meta.ModelCache != nil {
		t.Fatalf("stats reported a model cache")
	}
}

func TestStats_InteriorWhitespaceIsADifferentScope(t *testing.T) {
	h := newHarness(t)
	h.src.inner = violations.NewMemorySource([]model.Point{
		{Lon: -74.0, Lat: 40.7, OccurredAt: anchor, ViolationType: "no parking"},
		{Lon: -74.0, Lat: 40.7, OccurredAt: anchor, ViolationType: "no  parking"},
		{Lon: -74.0, Lat: 40.7, OccurredAt: anchor, ViolationType: "no  parking"},
	})
	ctx := context.Background()

	if _, err := h.svc.Stats(ctx, model.Filters{ViolationType: "no parking"}); err != nil {
		t.Fatal(err)
	}
	res, err := h.svc.Stats(ctx, model.Filters{ViolationType: "no  parking"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Meta.ResponseCache.Hit {
		t.Fatalf("second scope served from the first scope's entry")
	}
	var sum predict.Summary
	if err := json.Unmarshal(res.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 {
		t.Fatalf("total=%d want 2", sum.Total)
	}
}

func TestSourceErrorIsNotCached(t *testing.T) {
	h := newHarness(t)
	h.src.err = violations.ErrUnavailable
	_, err := h.svc.Stats(context.Background(), model.Filters{})
	if !errors.Is(err, violations.ErrUnavailable) {
		t.Fatalf("err=%v", err)
	}
	h.src.err = nil
	res, err := h.svc.Stats(context.Background(), model.Filters{})
	if err != nil || res.Meta.ResponseCache.Hit {
		t.Fatalf("after recovery: %v %+v", err, res)
	}
}

func TestParseTarget(t *testing.T) {
	for in, want := range map[string]Target{"model": TargetModel, " Response ": TargetResponse, "all": TargetAll, "": TargetAll} {
		got, err := ParseTarget(in)
		if err != nil || got != want {
			t.Fatalf("ParseTarget(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseTarget("disk"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err=%v", err)
	}
}

func TestETag(t *testing.T) {
	a, b := ETag([]byte(`{"a":1}`)), ETag([]byte(`{"a":2}`))
	if a == b || a[0] != '"' || a[len(a)-1] != '"' {
		t.Fatalf("etags %s %s", a, b)
	}
}
