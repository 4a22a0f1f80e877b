// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs/wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.X1 && lon <= b.X2 && lat >= b.Y1 && lat <= b.Y2
}

var ErrInvalidBBox = errors.New("bbox must be minLon,minLat,maxLon,maxLat")

// ParseBBox reads "minLon,minLat,maxLon,maxLat" and orders each axis.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return BBox{}, ErrInvalidBBox
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return BBox{}, ErrInvalidBBox
		}
		v[i] = f
	}
	return BBox{
		X1:   math.Min(v[0], v[2]),
		Y1:   math.Min(v[1], v[3]),
		X2:   math.Max(v[0], v[2]),
		Y2:   math.Max(v[1], v[3]),
		SRID: "EPSG:4326",
	}, nil
}

type Cells []string

type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

func (g Granularity) Valid() bool {
	return g == GranularityHour || g == GranularityDay
}

func (g Granularity) Step() time.Duration {
	if g == GranularityDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// Truncate floors t (in UTC) to the start of its bucket.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	if g == GranularityDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(time.Hour)
}

// Point is a single recorded violation.
type Point struct {
	Lon           float64
	Lat           float64
	OccurredAt    time.Time
	ViolationType string
}

type Bucket struct {
	TS    time.Time `json:"ts"`
	Count int       `json:"count"`
}

// Filters is the request scope shared by every analytics endpoint.
type Filters struct {
	Start         *time.Time
	End           *time.Time
	HourStart     *int
	HourEnd       *int
	ViolationType string
	// BBox is kept as supplied; parsing happens where it is consumed.
	BBox string
}

// WithoutTime drops the explicit time bounds but keeps the rest of the scope.
func (f Filters) WithoutTime() Filters {
	f.Start = nil
	f.End = nil
	return f
}

func (f Filters) ParsedBBox() (BBox, bool) {
	if strings.TrimSpace(f.BBox) == "" {
		return BBox{}, false
	}
	b, err := ParseBBox(f.BBox)
	if err != nil {
		return BBox{}, false
	}
	return b, true
}

// Match reports whether p falls inside the filter scope.
func (f Filters) Match(p Point) bool {
	ts := p.OccurredAt.UTC()
	if f.Start != nil && ts.Before(*f.Start) {
		return false
	}
	if f.End != nil && ts.After(*f.End) {
		return false
	}
	if vt := strings.TrimSpace(f.ViolationType); vt != "" && p.ViolationType != vt {
		return false
	}
	if !HourMatch(ts.Hour(), f.HourStart, f.HourEnd) {
		return false
	}
	if b, ok := f.ParsedBBox(); ok && !b.Contains(p.Lon, p.Lat) {
		return false
	}
	return true
}

// HourMatch applies the hour-of-day window; start > end wraps past midnight
// and a single bound selects exactly that hour.
func HourMatch(h int, start, end *int) bool {
	switch {
	case start != nil && end != nil:
		if *start <= *end {
			return h >= *start && h <= *end
		}
		return h >= *start || h <= *end
	case start != nil:
		return h == *start
	case end != nil:
		return h == *end
	default:
		return true
	}
}
