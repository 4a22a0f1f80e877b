package predict

import (
	"fmt"
	"sort"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/mapper"
)

const (
	DefaultCellM        = 250
	DefaultRecentDays   = 7
	DefaultBaselineDays = 30
	DefaultHotspotLimit = 3000
)

type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// HotspotWindows splits the time before anchorEnd into a recent span and the
// baseline span preceding it. Both starts are clamped to floor values
// (explicit start, first event) when present.
func HotspotWindows(anchorEnd time.Time, recentDays, baselineDays int, floors ...*time.Time) (recent, baseline Span) {
	day := 24 * time.Hour
	recentStart := anchorEnd.Add(-time.Duration(recentDays) * day)
	baselineEnd := recentStart
	baselineStart := baselineEnd.Add(-time.Duration(baselineDays) * day)
	for _, f := range floors {
		if f == nil {
			continue
		}
		if f.After(baselineStart) {
			baselineStart = *f
		}
		if f.After(recentStart) {
			recentStart = *f
		}
	}
	return Span{Start: recentStart, End: anchorEnd}, Span{Start: baselineStart, End: baselineEnd}
}

type HotspotCell struct {
	Cell          string     `json:"cell"`
	Centroid      [2]float64 `json:"centroid"`
	RecentCount   int        `json:"recent_count"`
	BaselineCount int        `json:"baseline_count"`
	Ratio         float64    `json:"ratio"`
	Score         float64    `json:"score"`
	RiskLevel     string     `json:"risk_level"`
}

type HotspotParams struct {
	Res          int
	RecentDays   int
	BaselineDays int
	Limit        int
}

// Hotspots counts points per grid cell in both spans and ranks cells by the
// recent daily rate over the baseline daily rate. Scores are min-max
// normalised over the returned cells.
func Hotspots(grid mapper.Grid, points []model.Point, recent, baseline Span, p HotspotParams) ([]HotspotCell, error) {
	type counts struct{ recent, baseline int }
	byCell := make(map[string]*counts)
	for _, pt := range points {
		inRecent := recent.contains(pt.OccurredAt)
		inBaseline := baseline.contains(pt.OccurredAt)
		if !inRecent && !inBaseline {
			continue
		}
		cell, err := grid.CellForPoint(pt.Lon, pt.Lat, p.Res)
		if err != nil {
			continue
		}
		c := byCell[cell]
		if c == nil {
			c = &counts{}
			byCell[cell] = c
		}
		if inRecent {
			c.recent++
		}
		if inBaseline {
			c.baseline++
		}
	}

	rd := float64(max(p.RecentDays, 1))
	bd := float64(max(p.BaselineDays, 1))
	cells := make([]HotspotCell, 0, len(byCell))
	for id, c := range byCell {
		ratio := (float64(c.recent) / rd) / (float64(c.baseline)/bd + 1e-9)
		cells = append(cells, HotspotCell{Cell: id, RecentCount: c.recent, BaselineCount: c.baseline, Ratio: ratio})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Ratio != cells[j].Ratio {
			return cells[i].Ratio > cells[j].Ratio
		}
		return cells[i].Cell < cells[j].Cell
	})
	if p.Limit > 0 && len(cells) > p.Limit {
		cells = cells[:p.Limit]
	}
	if len(cells) == 0 {
		return cells, nil
	}

	hi, lo := cells[0].Ratio, cells[len(cells)-1].Ratio
	span := hi - lo
	for i := range cells {
		c := &cells[i]
		lon, lat, err := grid.Centroid(c.Cell)
		if err != nil {
			return nil, fmt.Errorf("centroid %s: %w", c.Cell, err)
		}
		c.Centroid = [2]float64{round(lon, 6), round(lat, 6)}
		score := 0.0
		if span != 0 {
			score = 100 * (c.Ratio - lo) / span
		}
		c.Score = round(score, 2)
		c.RiskLevel = Level(score)
		c.Ratio = round(c.Ratio, 6)
	}
	return cells, nil
}
