// Package mapper converts between coordinates and grid cells.
package mapper

// Grid assigns points to cells and reports where a cell sits.
type Grid interface {
	Resolution(cellM int) int
	CellForPoint(lon, lat float64, res int) (string, error)
	Centroid(cell string) (lon, lat float64, err error)
}
