package h3mapper

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"
)

// average hexagon edge length in meters per resolution
var edgeLengthM = [16]float64{
	1281256.011, 483056.8391, 182512.9565, 68979.22179,
	26071.75968, 9854.090990, 3724.532667, 1406.475763,
	531.414010, 200.786148, 75.863783, 28.663897,
	10.830188, 4.092010, 1.546100, 0.584169,
}

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// Resolution picks the resolution whose average edge length is closest to
// cellM on a log scale.
func (m *Mapper) Resolution(cellM int) int {
	if cellM <= 0 {
		return len(edgeLengthM) - 1
	}
	target := math.Log(float64(cellM))
	best, bestDiff := 0, math.Inf(1)
	for res, e := range edgeLengthM {
		if d := math.Abs(math.Log(e) - target); d < bestDiff {
			best, bestDiff = res, d
		}
	}
	return best
}

func (m *Mapper) CellForPoint(lon, lat float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if math.IsNaN(lon) || math.IsNaN(lat) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinate out of range: %f,%f", lon, lat)
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// Centroid averages the cell boundary vertices.
func (m *Mapper) Centroid(cell string) (float64, float64, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	b, err := c.Boundary()
	if err != nil {
		return 0, 0, fmt.Errorf("boundary: %w", err)
	}
	if len(b) < 3 {
		return 0, 0, fmt.Errorf("degenerate boundary for %s", cell)
	}
	var lon, lat float64
	for _, ll := range b {
		lon += ll.Lng
		lat += ll.Lat
	}
	n := float64(len(b))
	return lon / n, lat / n, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
