package predict

import (
	"sort"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

const topTypes = 10

type TypeCount struct {
	ViolationType string `json:"violation_type"`
	Count         int    `json:"count"`
}

type Summary struct {
	Total    int         `json:"total"`
	MinTime  *time.Time  `json:"min_time"`
	MaxTime  *time.Time  `json:"max_time"`
	TopTypes []TypeCount `json:"top_types"`
}

// Stats totals points and ranks the ten most frequent violation types.
func Stats(points []model.Point) Summary {
	s := Summary{TopTypes: []TypeCount{}}
	if len(points) == 0 {
		return s
	}
	byType := map[string]int{}
	for i := range points {
		ts := points[i].OccurredAt.UTC()
		if s.MinTime == nil || ts.Before(*s.MinTime) {
			t := ts
			s.MinTime = &t
		}
		if s.MaxTime == nil || ts.After(*s.MaxTime) {
			t := ts
			s.MaxTime = &t
		}
		byType[points[i].ViolationType]++
	}
	s.Total = len(points)
	for vt, n := range byType {
		s.TopTypes = append(s.TopTypes, TypeCount{ViolationType: vt, Count: n})
	}
	sort.Slice(s.TopTypes, func(i, j int) bool {
		a, b := s.TopTypes[i], s.TopTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ViolationType < b.ViolationType
	})
	if len(s.TopTypes) > topTypes {
		s.TopTypes = s.TopTypes[:topTypes]
	}
	return s
}
