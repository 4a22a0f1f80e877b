// Package timeanchor resolves the as-of window of a request from the data
// itself instead of the wall clock.
package timeanchor

import (
	"context"
	"fmt"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

type Source string

const (
	SourceAnchored Source = "anchored"
	SourceAbsolute Source = "absolute"
)

const (
	Timezone      = "UTC"
	NoDataMessage = "No data for the given filter scope."
)

// RangeSource reports the observed min/max event time within a filter scope.
// Both are nil when the scope holds no data.
type RangeSource interface {
	TimeRange(ctx context.Context, f model.Filters) (minTS, maxTS *time.Time, err error)
}

type Options struct {
	// Lookback narrows an anchored window to [anchor-Lookback, anchor].
	Lookback time.Duration
}

type Window struct {
	DataMin *time.Time
	DataMax *time.Time
	Anchor  *time.Time
	Start   *time.Time
	End     *time.Time
	Source  Source
	Message string
}

// Anchor fetches the observed range for f without its time bounds and
// computes the window. It performs exactly one query.
func Anchor(ctx context.Context, src RangeSource, f model.Filters, opts Options) (Window, error) {
	dataMin, dataMax, err := src.TimeRange(ctx, f.WithoutTime())
	if err != nil {
		return Window{}, fmt.Errorf("time range: %w", err)
	}
	return Compute(f, dataMin, dataMax, opts), nil
}

// Compute is pure: identical inputs always give an identical window.
// With both bounds the window is absolute. Otherwise it is anchored at
// the data max: a lone end earlier than the data max pulls the window end
// back to it, and a lone start later than the window start moves the start
// up. The anchor itself always stays at the data max.
func Compute(f model.Filters, dataMin, dataMax *time.Time, opts Options) Window {
	w := Window{DataMin: utc(dataMin), DataMax: utc(dataMax)}
	start, end := utc(f.Start), utc(f.End)

	if start != nil && end != nil {
		w.Source = SourceAbsolute
		w.Start, w.End = start, end
		w.Anchor = w.DataMax
		if w.DataMax == nil {
			w.Message = NoDataMessage
		}
		return w
	}

	w.Source = SourceAnchored
	if w.DataMax == nil {
		w.Message = NoDataMessage
		return w
	}

	w.Anchor = w.DataMax
	e := *w.DataMax
	if end != nil && end.Before(e) {
		e = *end
	}
	var s time.Time
	switch {
	case w.DataMin != nil:
		s = *w.DataMin
	default:
		s = e
	}
	if opts.Lookback > 0 {
		if lb := e.Add(-opts.Lookback); lb.After(s) {
			s = lb
		}
	}
	if start != nil && start.After(s) {
		s = *start
	}
	if s.After(e) {
		s = e
	}
	w.Start, w.End = &s, &e
	return w
}

type EffectiveWindow struct {
	StartTS *string `json:"start_ts"`
	EndTS   *string `json:"end_ts"`
}

// Meta is the data freshness contract attached to every analytics response.
type Meta struct {
	DataMinTS       *string         `json:"data_min_ts"`
	DataMaxTS       *string         `json:"data_max_ts"`
	AnchorTS        *string         `json:"anchor_ts"`
	EffectiveWindow EffectiveWindow `json:"effective_window"`
	WindowSource    Source          `json:"window_source"`
	Timezone        string          `json:"timezone"`
	Message         string          `json:"message,omitempty"`
}

func (w Window) Meta() Meta {
	return Meta{
		DataMinTS: iso(w.DataMin),
		DataMaxTS: iso(w.DataMax),
		AnchorTS:  iso(w.Anchor),
		EffectiveWindow: EffectiveWindow{
			StartTS: iso(w.Start),
			EndTS:   iso(w.End),
		},
		WindowSource: w.Source,
		Timezone:     Timezone,
		Message:      w.Message,
	}
}

// Filters returns f with its time bounds replaced by the effective window.
func (w Window) Filters(f model.Filters) model.Filters {
	f.Start, f.End = w.Start, w.End
	return f
}

// AnchorString renders the anchor for signatures; "" when there is no data.
func (w Window) AnchorString() string {
	return Format(w.Anchor)
}

func Format(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func iso(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Format(t)
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
