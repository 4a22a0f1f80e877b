package violations

import (
	"sort"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

// Series buckets points by granularity. Buckets run continuously from the
// first to the last observed bucket with zero fill, and only the most recent
// limit buckets are kept when limit > 0.
func Series(points []model.Point, gran model.Granularity, limit int) []model.Bucket {
	if len(points) == 0 {
		return []model.Bucket{}
	}
	counts := make(map[time.Time]int, len(points))
	keys := make([]time.Time, 0)
	for _, p := range points {
		k := gran.Truncate(p.OccurredAt)
		if _, ok := counts[k]; !ok {
			keys = append(keys, k)
		}
		counts[k]++
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	first, last := keys[0], keys[len(keys)-1]
	step := gran.Step()
	if limit > 0 {
		// skip straight to the kept tail
		if n := int(last.Sub(first)/step) + 1; n > limit {
			first = last.Add(-time.Duration(limit-1) * step)
		}
	}

	out := make([]model.Bucket, 0, int(last.Sub(first)/step)+1)
	for ts := first; !ts.After(last); ts = ts.Add(step) {
		out = append(out, model.Bucket{TS: ts, Count: counts[ts]})
	}
	return out
}

// Values returns the counts of a series in order.
func Values(buckets []model.Bucket) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = float64(b.Count)
	}
	return out
}
