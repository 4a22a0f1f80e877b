package analytics

import (
	"context"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/predict"
	"github.com/achintya924/Traffic-lyt/internal/timeanchor"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

type SeriesQuery struct {
	Filters      model.Filters
	Granularity  model.Granularity
	LimitHistory int
}

type ForecastQuery struct {
	SeriesQuery
	Horizon int
	Model   predict.ModelName
	Window  int
	Alpha   float64
}

type HotspotQuery struct {
	Filters      model.Filters
	CellM        int
	RecentDays   int
	BaselineDays int
	Limit        int
}

type seriesData struct {
	Granularity model.Granularity `json:"granularity"`
	Series      []model.Bucket    `json:"series"`
	Points      int               `json:"points"`
}

type modelInfo struct {
	Name    predict.ModelName `json:"name"`
	Window  int               `json:"window"`
	Alpha   float64           `json:"alpha"`
	Horizon int               `json:"horizon"`
}

type forecastData struct {
	Granularity    model.Granularity `json:"granularity"`
	Model          modelInfo         `json:"model"`
	History        []model.Bucket    `json:"history"`
	Forecast       []model.Bucket    `json:"forecast"`
	HistoryPoints  int               `json:"history_points"`
	ForecastPoints int               `json:"forecast_points"`
}

type riskData struct {
	Granularity   model.Granularity  `json:"granularity"`
	Model         modelInfo          `json:"model"`
	Baseline      predict.RiskModel  `json:"baseline"`
	Forecast      []predict.RiskStep `json:"forecast"`
	HistoryPoints int                `json:"history_points"`
}

type spanMeta struct {
	StartTS *string `json:"start_ts"`
	EndTS   *string `json:"end_ts"`
}

type hotspotData struct {
	Cells        []predict.HotspotCell `json:"cells"`
	CellM        int                   `json:"cell_m"`
	Resolution   int                   `json:"h3_resolution"`
	RecentDays   int                   `json:"recent_days"`
	BaselineDays int                   `json:"baseline_days"`
	Points       int                   `json:"points"`
	Recent       *spanMeta             `json:"recent"`
	Baseline     *spanMeta             `json:"baseline"`
}

// fittedSeries is the artifact behind forecast and risk: the history the
// model saw and the fitted state.
type fittedSeries struct {
	History []model.Bucket
	Fitted  predict.Fitted
	Risk    predict.RiskModel
}

func (q SeriesQuery) normalized(limit int) SeriesQuery {
	if q.Granularity == "" {
		q.Granularity = model.GranularityHour
	}
	if q.LimitHistory <= 0 {
		q.LimitHistory = limit
	}
	return q
}

func (q ForecastQuery) normalized(limit int) ForecastQuery {
	q.SeriesQuery = q.SeriesQuery.normalized(limit)
	if q.Horizon <= 0 {
		q.Horizon = predict.DefaultHorizon(q.Granularity)
	}
	if q.Model == "" {
		q.Model = predict.ModelMA
	}
	if q.Window <= 0 {
		q.Window = predict.DefaultWindow
	}
	return q
}

func (q ForecastQuery) fitParams() map[string]any {
	return map[string]any{
		"model":         string(q.Model),
		"window":        q.Window,
		"alpha":         q.Alpha,
		"limit_history": q.LimitHistory,
	}
}

func (s *Service) history(ctx context.Context, f model.Filters, q SeriesQuery) ([]model.Bucket, error) {
	pts, err := s.src.Points(ctx, f)
	if err != nil {
		return nil, err
	}
	return violations.Series(pts, q.Granularity, q.LimitHistory), nil
}

func (s *Service) Timeseries(ctx context.Context, q SeriesQuery) (*Result, error) {
	q = q.normalized(s.opts.HistoryLimit)
	req := request{
		endpoint: EndpointTimeseries,
		filters:  q.Filters,
		gran:     q.Granularity,
		params:   map[string]any{"limit_history": q.LimitHistory},
	}
	return s.serve(ctx, req, func(ctx context.Context, _ timeanchor.Window, f model.Filters, sig keys.Signature) (computed, error) {
		series, flag, err := artifact(ctx, s, sig, func() ([]model.Bucket, error) {
			return s.history(ctx, f, q)
		})
		if err != nil {
			return computed{}, err
		}
		return computed{
			data:  seriesData{Granularity: q.Granularity, Series: series, Points: len(series)},
			model: flag,
		}, nil
	})
}

// fit builds or reuses the fitted series for q. The artifact key leaves the
// horizon out so every horizon shares one fit.
func (s *Service) fit(ctx context.Context, f model.Filters, sig keys.Signature, q ForecastQuery) (fittedSeries, *CacheFlag, error) {
	msig := sig
	msig.Params = q.fitParams()
	return artifact(ctx, s, msig, func() (fittedSeries, error) {
		h, err := s.history(ctx, f, q.SeriesQuery)
		if err != nil {
			return fittedSeries{}, err
		}
		fitted, err := predict.Fit(h, q.Granularity, predict.ForecastParams{Model: q.Model, Window: q.Window, Alpha: q.Alpha})
		if err != nil {
			return fittedSeries{}, err
		}
		return fittedSeries{History: h, Fitted: fitted, Risk: predict.FitRisk(h)}, nil
	})
}

func (s *Service) Forecast(ctx context.Context, q ForecastQuery) (*Result, error) {
	q = q.normalized(s.opts.HistoryLimit)
	params := q.fitParams()
	params["horizon"] = q.Horizon
	req := request{endpoint: EndpointForecast, filters: q.Filters, gran: q.Granularity, params: params}

	return s.serve(ctx, req, func(ctx context.Context, _ timeanchor.Window, f model.Filters, sig keys.Signature) (computed, error) {
		fs, flag, err := s.fit(ctx, f, sig, q)
		if err != nil {
			return computed{}, err
		}
		fc := fs.Fitted.Predict(q.Horizon)
		return computed{
			data: forecastData{
				Granularity:    q.Granularity,
				Model:          modelInfo{Name: q.Model, Window: q.Window, Alpha: q.Alpha, Horizon: q.Horizon},
				History:        fs.History,
				Forecast:       fc,
				HistoryPoints:  len(fs.History),
				ForecastPoints: len(fc),
			},
			model: flag,
		}, nil
	})
}

func (s *Service) Risk(ctx context.Context, q ForecastQuery) (*Result, error) {
	q = q.normalized(s.opts.HistoryLimit)
	params := q.fitParams()
	params["horizon"] = q.Horizon
	req := request{endpoint: EndpointRisk, filters: q.Filters, gran: q.Granularity, params: params}

	return s.serve(ctx, req, func(ctx context.Context, _ timeanchor.Window, f model.Filters, sig keys.Signature) (computed, error) {
		fs, flag, err := s.fit(ctx, f, sig, q)
		if err != nil {
			return computed{}, err
		}
		return computed{
			data: riskData{
				Granularity:   q.Granularity,
				Model:         modelInfo{Name: q.Model, Window: q.Window, Alpha: q.Alpha, Horizon: q.Horizon},
				Baseline:      fs.Risk,
				Forecast:      fs.Risk.Assess(fs.Fitted.Predict(q.Horizon)),
				HistoryPoints: len(fs.History),
			},
			model: flag,
		}, nil
	})
}

func (q HotspotQuery) normalized() HotspotQuery {
	if q.CellM <= 0 {
		q.CellM = predict.DefaultCellM
	}
	if q.RecentDays <= 0 {
		q.RecentDays = predict.DefaultRecentDays
	}
	if q.BaselineDays <= 0 {
		q.BaselineDays = predict.DefaultBaselineDays
	}
	if q.Limit <= 0 {
		q.Limit = predict.DefaultHotspotLimit
	}
	return q
}

func (s *Service) Hotspots(ctx context.Context, q HotspotQuery) (*Result, error) {
	q = q.normalized()
	req := request{
		endpoint: EndpointHotspots,
		filters:  q.Filters,
		params: map[string]any{
			"cell_m":        q.CellM,
			"recent_days":   q.RecentDays,
			"baseline_days": q.BaselineDays,
			"limit":         q.Limit,
		},
	}
	res := s.grid.Resolution(q.CellM)

	return s.serve(ctx, req, func(ctx context.Context, w timeanchor.Window, f model.Filters, _ keys.Signature) (computed, error) {
		data := hotspotData{
			Cells:        []predict.HotspotCell{},
			CellM:        q.CellM,
			Resolution:   res,
			RecentDays:   q.RecentDays,
			BaselineDays: q.BaselineDays,
		}
		if w.End == nil {
			return computed{data: data}, nil
		}

		anchorEnd := *w.End
		recent, baseline := predict.HotspotWindows(anchorEnd, q.RecentDays, q.BaselineDays, q.Filters.Start, w.DataMin)
		f.Start, f.End = &baseline.Start, &recent.End
		pts, err := s.src.Points(ctx, f)
		if err != nil {
			return computed{}, err
		}
		cells, err := predict.Hotspots(s.grid, pts, recent, baseline, predict.HotspotParams{
			Res:          res,
			RecentDays:   q.RecentDays,
			BaselineDays: q.BaselineDays,
			Limit:        q.Limit,
		})
		if err != nil {
			return computed{}, err
		}
		data.Cells = cells
		data.Points = len(pts)
		data.Recent = span(recent)
		data.Baseline = span(baseline)

		eff := w
		eff.Start, eff.End = &baseline.Start, &anchorEnd
		return computed{data: data, window: &eff}, nil
	})
}

func span(s predict.Span) *spanMeta {
	start, end := s.Start, s.End
	a, b := timeanchor.Format(&start), timeanchor.Format(&end)
	return &spanMeta{StartTS: &a, EndTS: &b}
}

func (s *Service) Stats(ctx context.Context, f model.Filters) (*Result, error) {
	req := request{endpoint: EndpointStats, filters: f}
	return s.serve(ctx, req, func(ctx context.Context, _ timeanchor.Window, f model.Filters, _ keys.Signature) (computed, error) {
		pts, err := s.src.Points(ctx, f)
		if err != nil {
			return computed{}, err
		}
		return computed{data: predict.Stats(pts)}, nil
	})
}

// RunCleanup sweeps expired entries from both caches until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m := s.models.CleanupExpired()
			r := s.responses.CleanupExpired()
			if m+r > 0 {
				s.log.Debug("cache cleanup", "model", m, "response", r)
			}
		}
	}
}
