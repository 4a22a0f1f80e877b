package violations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/core/observability"
	"github.com/achintya924/Traffic-lyt/internal/core/ogc"
)

const breakerName = "geoserver-wfs"

type WFSOptions struct {
	GeoServerURL string
	Layer        string
	Client       *http.Client
	Logger       *slog.Logger
	// consecutive failures before the breaker opens; 5 when zero
	MaxFailures uint32
	// how long the breaker stays open; 30s when zero
	OpenTimeout time.Duration
}

// WFSSource reads violations from a GeoServer layer via WFS 2.0 GetFeature.
type WFSSource struct {
	log    *slog.Logger
	client *http.Client
	owsURL *url.URL
	layer  string
	cb     *gobreaker.CircuitBreaker[[]model.Point]
}

func NewWFSSource(opts WFSOptions) (*WFSSource, error) {
	u, err := url.Parse(ogc.OWSEndpoint(opts.GeoServerURL))
	if err != nil {
		return nil, fmt.Errorf("parse ows url: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	log := opts.Logger
	maxFailures := opts.MaxFailures

	observability.SetCircuitState(breakerName, stateValue(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[[]model.Point](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not an upstream fault
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			observability.SetCircuitState(name, stateValue(to))
		},
	})

	return &WFSSource{
		log:    log,
		client: opts.Client,
		owsURL: u,
		layer:  opts.Layer,
		cb:     cb,
	}, nil
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (s *WFSSource) Points(ctx context.Context, f model.Filters) ([]model.Point, error) {
	pts, err := s.fetch(ctx, ogc.ViolationQuery(s.layer, f))
	if err != nil {
		return nil, err
	}
	// hour bounds and exact bbox edges are applied here
	return filter(pts, f), nil
}

// TimeRange asks for the first and last feature by time. With an hour
// filter the server cannot narrow the scope, so the points are scanned.
func (s *WFSSource) TimeRange(ctx context.Context, f model.Filters) (*time.Time, *time.Time, error) {
	if f.HourStart != nil || f.HourEnd != nil {
		pts, err := s.Points(ctx, f)
		if err != nil {
			return nil, nil, err
		}
		minTS, maxTS := rangeOf(pts)
		return minTS, maxTS, nil
	}

	q := ogc.ViolationQuery(s.layer, f)
	q.Count = 1
	q.PropertyName = []string{ogc.DefaultGeomField, ogc.TimeField}

	q.SortBy = ogc.TimeField + " A"
	first, err := s.fetch(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	q.SortBy = ogc.TimeField + " D"
	last, err := s.fetch(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	minTS, _ := rangeOf(first)
	_, maxTS := rangeOf(last)
	if minTS == nil || maxTS == nil {
		return nil, nil, nil
	}
	return minTS, maxTS, nil
}

func (s *WFSSource) fetch(ctx context.Context, q ogc.Query) ([]model.Point, error) {
	pts, err := s.cb.Execute(func() ([]model.Point, error) {
		return s.get(ctx, q)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return pts, err
}

func (s *WFSSource) get(ctx context.Context, q ogc.Query) ([]model.Point, error) {
	u := *s.owsURL
	u.RawQuery = ogc.BuildGetFeatureParams(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("wfs", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveUpstreamLatency("wfs", "error", time.Since(start).Seconds())
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
	}

	pts, err := DecodePoints(resp.Body)
	dur := time.Since(start)
	if err != nil {
		observability.ObserveUpstreamLatency("wfs", "error", dur.Seconds())
		return nil, err
	}
	observability.ObserveUpstreamLatency("wfs", "ok", dur.Seconds())
	s.log.DebugContext(ctx, "wfs fetch done",
		"layer", q.Layer,
		"features", len(pts),
		"duration", dur)
	return pts, nil
}
