// Package router turns query strings into validated analytics calls and
// writes their results.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/analytics"
	"github.com/achintya924/Traffic-lyt/internal/cache/memstore"
	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/predict"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

// Analytics is the service behind the predictive endpoints.
type Analytics interface {
	Timeseries(ctx context.Context, q analytics.SeriesQuery) (*analytics.Result, error)
	Forecast(ctx context.Context, q analytics.ForecastQuery) (*analytics.Result, error)
	Risk(ctx context.Context, q analytics.ForecastQuery) (*analytics.Result, error)
	Hotspots(ctx context.Context, q analytics.HotspotQuery) (*analytics.Result, error)
	Stats(ctx context.Context, f model.Filters) (*analytics.Result, error)
	CacheStats() analytics.CacheStats
	Invalidate(t analytics.Target, endpoint, source string) analytics.Invalidated
}

type LimiterStats interface {
	Stats() ratelimit.Stats
}

type Handlers struct {
	svc     Analytics
	limiter LimiterStats
	v       *validator.Validate
	log     *slog.Logger
}

func New(svc Analytics, limiter LimiterStats, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{svc: svc, limiter: limiter, v: NewValidator(), log: log}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func unprocessable(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: detail})
}

// check finishes parsing: collected parse errors first, then struct rules,
// then the cross-field start/end rule.
func (h *Handlers) check(w http.ResponseWriter, q *query, params any, f filterParams) bool {
	if len(q.errs) > 0 {
		unprocessable(w, strings.Join(q.errs, "; "))
		return false
	}
	if err := h.v.Struct(params); err != nil {
		unprocessable(w, validationDetail(err))
		return false
	}
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		unprocessable(w, "start must be <= end")
		return false
	}
	return true
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, endpoint string, res *analytics.Result, err error) {
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	w.Header().Set("ETag", res.ETag)
	w.Header().Set("Cache-Control", "no-cache")
	if res.Meta.ResponseCache.Hit {
		w.Header().Set("X-Response-Cache", "HIT")
	} else {
		w.Header().Set("X-Response-Cache", "MISS")
	}
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatch(match, res.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func etagMatch(header, etag string) bool {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "W/")
		if part == "*" || part == etag {
			return true
		}
	}
	return false
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
		h.log.DebugContext(r.Context(), "request canceled", "endpoint", endpoint)
		return
	case errors.Is(err, violations.ErrUnavailable):
		h.log.WarnContext(r.Context(), "upstream unavailable", "endpoint", endpoint, "err", err)
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "data source temporarily unavailable"})
	case errors.Is(err, predict.ErrUnknownModel):
		unprocessable(w, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "analytics failed", "endpoint", endpoint, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: endpoint + " failed"})
	}
}

func (h *Handlers) Timeseries(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := q.series()
	if !h.check(w, q, p, p.filterParams) {
		return
	}
	res, err := h.svc.Timeseries(r.Context(), analytics.SeriesQuery{
		Filters:      p.filters(),
		Granularity:  model.Granularity(p.Granularity),
		LimitHistory: p.LimitHistory,
	})
	h.respond(w, r, analytics.EndpointTimeseries, res, err)
}

func (p forecastParams) query() analytics.ForecastQuery {
	fq := analytics.ForecastQuery{
		SeriesQuery: analytics.SeriesQuery{
			Filters:      p.filters(),
			Granularity:  model.Granularity(p.Granularity),
			LimitHistory: p.LimitHistory,
		},
		Model:  predict.ModelName(p.Model),
		Window: p.Window,
		Alpha:  p.Alpha,
	}
	if p.Horizon != nil {
		fq.Horizon = *p.Horizon
	}
	return fq
}

func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := q.forecast()
	if !h.check(w, q, p, p.filterParams) {
		return
	}
	res, err := h.svc.Forecast(r.Context(), p.query())
	h.respond(w, r, analytics.EndpointForecast, res, err)
}

func (h *Handlers) Risk(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := q.forecast()
	if !h.check(w, q, p, p.filterParams) {
		return
	}
	res, err := h.svc.Risk(r.Context(), p.query())
	h.respond(w, r, analytics.EndpointRisk, res, err)
}

func (h *Handlers) Hotspots(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := q.hotspots()
	if !h.check(w, q, p, p.filterParams) {
		return
	}
	res, err := h.svc.Hotspots(r.Context(), analytics.HotspotQuery{
		Filters:      p.filters(),
		CellM:        p.CellM,
		RecentDays:   p.RecentDays,
		BaselineDays: p.BaselineDays,
		Limit:        p.Limit,
	})
	h.respond(w, r, analytics.EndpointHotspots, res, err)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := q.filters()
	if !h.check(w, q, p, p) {
		return
	}
	res, err := h.svc.Stats(r.Context(), p.filters())
	h.respond(w, r, analytics.EndpointStats, res, err)
}

type adminStats struct {
	ModelCache    memstore.Stats   `json:"model_cache"`
	ResponseCache memstore.Stats   `json:"response_cache"`
	RateLimit     *ratelimit.Stats `json:"rate_limit,omitempty"`
}

func (h *Handlers) AdminStats(w http.ResponseWriter, _ *http.Request) {
	cs := h.svc.CacheStats()
	out := adminStats{ModelCache: cs.Model, ResponseCache: cs.Response}
	if h.limiter != nil {
		st := h.limiter.Stats()
		out.RateLimit = &st
	}
	writeJSON(w, http.StatusOK, out)
}

type invalidateResult struct {
	Cache       analytics.Target      `json:"cache"`
	Endpoint    string                `json:"endpoint,omitempty"`
	Invalidated analytics.Invalidated `json:"invalidated"`
}

func (h *Handlers) AdminInvalidate(w http.ResponseWriter, r *http.Request) {
	q := &query{v: r.URL.Query()}
	p := invalidateParams{Cache: q.str("cache", ""), Endpoint: q.str("endpoint", "")}
	if err := h.v.Struct(p); err != nil {
		unprocessable(w, validationDetail(err))
		return
	}
	t, err := analytics.ParseTarget(p.Cache)
	if err != nil {
		unprocessable(w, err.Error())
		return
	}
	n := h.svc.Invalidate(t, p.Endpoint, "admin")
	writeJSON(w, http.StatusOK, invalidateResult{Cache: t, Endpoint: p.Endpoint, Invalidated: n})
}
