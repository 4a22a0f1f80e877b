package violations

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Geometry   *pointGeometry `json:"geometry"`
	Properties struct {
		OccurredAt    string `json:"occurred_at"`
		ViolationType string `json:"violation_type"`
	} `json:"properties"`
}

type pointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and naive timestamps; naive values are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DecodePoints reads a GeoJSON FeatureCollection of Point features. Features
// without a usable geometry or timestamp are skipped.
func DecodePoints(r io.Reader) ([]model.Point, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unexpected geojson type %q", fc.Type)
	}
	out := make([]model.Point, 0, len(fc.Features))
	for _, f := range fc.Features {
		g := f.Geometry
		if g == nil || g.Type != "Point" || len(g.Coordinates) < 2 {
			continue
		}
		ts, err := ParseTime(f.Properties.OccurredAt)
		if err != nil {
			continue
		}
		out = append(out, model.Point{
			Lon:           g.Coordinates[0],
			Lat:           g.Coordinates[1],
			OccurredAt:    ts,
			ViolationType: strings.TrimSpace(f.Properties.ViolationType),
		})
	}
	return out, nil
}

// LoadFile builds a MemorySource from a GeoJSON file.
func LoadFile(path string) (*MemorySource, error) {
	if path == "" {
		return nil, errors.New("violations file path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open violations file: %w", err)
	}
	defer func() { _ = f.Close() }()
	pts, err := DecodePoints(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return NewMemorySource(pts), nil
}
