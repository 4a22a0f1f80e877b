package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/analytics"
	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/predict"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

type fakeAnalytics struct {
	lastSeries   analytics.SeriesQuery
	lastForecast analytics.ForecastQuery
	lastHotspots analytics.HotspotQuery
	lastFilters  model.Filters
	lastTarget   analytics.Target
	lastEndpoint string
	err          error
	hit          bool
}

func (f *fakeAnalytics) result() (*analytics.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	data := json.RawMessage(`{"ok":true}`)
	return &analytics.Result{
		Data: data,
		ETag: analytics.ETag(data),
		Meta: analytics.Meta{Endpoint: "x", ResponseCache: analytics.CacheFlag{Hit: f.hit, KeyHash: "abcdefabcdef"}},
	}, nil
}

func (f *fakeAnalytics) Timeseries(_ context.Context, q analytics.SeriesQuery) (*analytics.Result, error) {
	f.lastSeries = q
	return f.result()
}

func (f *fakeAnalytics) Forecast(_ context.Context, q analytics.ForecastQuery) (*analytics.Result, error) {
	f.lastForecast = q
	return f.result()
}

func (f *fakeAnalytics) Risk(_ context.Context, q analytics.ForecastQuery) (*analytics.Result, error) {
	f.lastForecast = q
	return f.result()
}

func (f *fakeAnalytics) Hotspots(_ context.Context, q analytics.HotspotQuery) (*analytics.Result, error) {
	f.lastHotspots = q
	return f.result()
}

func (f *fakeAnalytics) Stats(_ context.Context, fl model.Filters) (*analytics.Result, error) {
	f.lastFilters = fl
	return f.result()
}

func (f *fakeAnalytics) CacheStats() analytics.CacheStats { return analytics.CacheStats{} }

func (f *fakeAnalytics) Invalidate(t analytics.Target, endpoint, _ string) analytics.Invalidated {
	f.lastTarget, f.lastEndpoint = t, endpoint
	return analytics.Invalidated{Model: 2, Response: 3}
}

func newHandlers(f *fakeAnalytics) *Handlers {
	lim := ratelimit.New(ratelimit.Config{})
	return New(f, lim, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(h http.HandlerFunc, method, target string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestForecast_DefaultsAndParsing(t *testing.T) {
	f := &fakeAnalytics{}
	h := newHandlers(f)

	rr := do(h.Forecast, http.MethodGet, "/predict/forecast?granularity=day&hour_start=22&hour_end=2&violation_type=%20No%20Parking%20&bbox=-74.1,40.6,-73.9,40.8")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	q := f.lastForecast
	if q.Granularity != model.GranularityDay || q.Model != predict.ModelMA || q.Window != 6 || q.Alpha != 0.3 || q.LimitHistory != 500 {
		t.Fatalf("query=%+v", q)
	}
	if q.Horizon != 0 {
		t.Fatalf("horizon=%d want 0 so the service picks the granularity default", q.Horizon)
	}
	if *q.Filters.HourStart != 22 || *q.Filters.HourEnd != 2 || q.Filters.ViolationType != "No Parking" {
		t.Fatalf("filters=%+v", q.Filters)
	}
	if rr.Header().Get("ETag") == "" || rr.Header().Get("X-Response-Cache") != "MISS" {
		t.Fatalf("headers=%v", rr.Header())
	}

	var body struct {
		Data map[string]bool `json:"data"`
		Meta analytics.Meta  `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Data["ok"] || body.Meta.ResponseCache.KeyHash != "abcdefabcdef" {
		t.Fatalf("body=%s", rr.Body)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newHandlers(&fakeAnalytics{})
	cases := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		want    string
	}{
		{"hour range", h.Timeseries, "/predict/timeseries?hour_start=24", "hour_start: must be <= 23"},
		{"granularity", h.Timeseries, "/predict/timeseries?granularity=week", "granularity: must be one of hour day"},
		{"limit history", h.Timeseries, "/predict/timeseries?limit_history=0", "limit_history: must be >= 1"},
		{"not an int", h.Timeseries, "/predict/timeseries?hour_end=noon", "hour_end: must be an integer"},
		{"bad bbox", h.Stats, "/violations/stats?bbox=1,2,3", "bbox:"},
		{"bbox range", h.Stats, "/violations/stats?bbox=-200,0,10,10", "bbox:"},
		{"bad time", h.Stats, "/violations/stats?start=yesterday", "start: must be an ISO 8601 timestamp"},
		{"start after end", h.Stats, "/violations/stats?start=2024-02-01T00:00:00Z&end=2024-01-01T00:00:00Z", "start must be <= end"},
		{"model", h.Forecast, "/predict/forecast?model=arima", "model: must be one of naive ma ewm"},
		{"horizon", h.Risk, "/predict/risk?horizon=366", "horizon: must be <= 365"},
		{"alpha", h.Forecast, "/predict/forecast?alpha=1.5", "alpha: must be <= 1"},
		{"cell size", h.Hotspots, "/predict/hotspots/grid?cell_m=10", "cell_m: must be >= 50"},
		{"recent days", h.Hotspots, "/predict/hotspots/grid?recent_days=91", "recent_days: must be <= 90"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(tc.handler, http.MethodGet, tc.target)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
			}
			var body errorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(body.Detail, tc.want) {
				t.Fatalf("detail=%q want %q", body.Detail, tc.want)
			}
		})
	}
}

func TestHotspots_Defaults(t *testing.T) {
	f := &fakeAnalytics{}
	h := newHandlers(f)
	if rr := do(h.Hotspots, http.MethodGet, "/predict/hotspots/grid"); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	want := analytics.HotspotQuery{CellM: 250, RecentDays: 7, BaselineDays: 30, Limit: 3000}
	if f.lastHotspots != want {
		t.Fatalf("query=%+v", f.lastHotspots)
	}
}

func TestIfNoneMatch(t *testing.T) {
	f := &fakeAnalytics{hit: true}
	h := newHandlers(f)
	first := do(h.Stats, http.MethodGet, "/violations/stats")
	etag := first.Header().Get("ETag")
	if first.Header().Get("X-Response-Cache") != "HIT" {
		t.Fatalf("cache header=%q", first.Header().Get("X-Response-Cache"))
	}

	rr := do(h.Stats, http.MethodGet, "/violations/stats", "If-None-Match", `"other", `+etag)
	if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body)
	}
	rr = do(h.Stats, http.MethodGet, "/violations/stats", "If-None-Match", `"stale"`)
	if rr.Code != http.StatusOK {
		t.Fatalf("stale etag status=%d", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("stats: %w", violations.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("forecast: %w", predict.ErrUnknownModel), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newHandlers(&fakeAnalytics{err: tc.err})
		rr := do(h.Stats, http.MethodGet, "/violations/stats")
		if rr.Code != tc.code {
			t.Fatalf("%v: status=%d want %d", tc.err, rr.Code, tc.code)
		}
	}
}

func TestAdminInvalidate(t *testing.T) {
	f := &fakeAnalytics{}
	h := newHandlers(f)

	rr := do(h.AdminInvalidate, http.MethodPost, "/admin/cache/invalidate?cache=model&endpoint=risk")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if f.lastTarget != analytics.TargetModel || f.lastEndpoint != "risk" {
		t.Fatalf("target=%s endpoint=%s", f.lastTarget, f.lastEndpoint)
	}
	var out invalidateResult
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Invalidated.Response != 3 {
		t.Fatalf("out=%+v", out)
	}

	if rr := do(h.AdminInvalidate, http.MethodPost, "/admin/cache/invalidate"); rr.Code != http.StatusOK || f.lastTarget != analytics.TargetAll {
		t.Fatalf("default target: status=%d target=%s", rr.Code, f.lastTarget)
	}
	if rr := do(h.AdminInvalidate, http.MethodPost, "/admin/cache/invalidate?cache=disk"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad cache status=%d", rr.Code)
	}
	if rr := do(h.AdminInvalidate, http.MethodPost, "/admin/cache/invalidate?endpoint=zones"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad endpoint status=%d", rr.Code)
	}
}

func TestAdminStats(t *testing.T) {
	h := newHandlers(&fakeAnalytics{})
	rr := do(h.AdminStats, http.MethodGet, "/admin/cache/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"model_cache", "response_cache", "rate_limit"} {
		if _, ok := out[k]; !ok {
			t.Fatalf("missing %s in %s", k, rr.Body)
		}
	}
}
