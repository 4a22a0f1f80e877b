// Package violations is the query layer over the recorded violations
// dataset: GeoServer WFS in production, an in-memory set for local runs.
package violations

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

// ErrUnavailable marks an upstream that is failing fast (circuit open).
var ErrUnavailable = errors.New("violations source unavailable")

type Source interface {
	// TimeRange returns the min and max event time within f; both nil
	// when the scope holds no data.
	TimeRange(ctx context.Context, f model.Filters) (minTS, maxTS *time.Time, err error)
	// Points returns every violation within f.
	Points(ctx context.Context, f model.Filters) ([]model.Point, error)
}

func rangeOf(points []model.Point) (minTS, maxTS *time.Time) {
	for i := range points {
		ts := points[i].OccurredAt.UTC()
		if minTS == nil || ts.Before(*minTS) {
			t := ts
			minTS = &t
		}
		if maxTS == nil || ts.After(*maxTS) {
			t := ts
			maxTS = &t
		}
	}
	return minTS, maxTS
}

func filter(points []model.Point, f model.Filters) []model.Point {
	out := make([]model.Point, 0, len(points))
	for _, p := range points {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// MemorySource serves a fixed, time-ordered set of points.
type MemorySource struct {
	points []model.Point
}

func NewMemorySource(points []model.Point) *MemorySource {
	cp := append([]model.Point(nil), points...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].OccurredAt.Before(cp[j].OccurredAt) })
	return &MemorySource{points: cp}
}

func (m *MemorySource) TimeRange(_ context.Context, f model.Filters) (*time.Time, *time.Time, error) {
	minTS, maxTS := rangeOf(filter(m.points, f))
	return minTS, maxTS, nil
}

func (m *MemorySource) Points(ctx context.Context, f model.Filters) ([]model.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter(m.points, f), nil
}

func (m *MemorySource) Len() int { return len(m.points) }
