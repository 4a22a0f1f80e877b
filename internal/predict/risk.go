package predict

import (
	"math"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// Level buckets a 0-100 score.
func Level(score float64) string {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// RiskModel is the baseline a forecast is judged against.
type RiskModel struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Points int     `json:"points"`
}

type RiskStep struct {
	TS       time.Time `json:"ts"`
	Expected int       `json:"expected_count"`
	Score    float64   `json:"score"`
	Level    string    `json:"risk_level"`
}

func FitRisk(history []model.Bucket) RiskModel {
	n := len(history)
	if n == 0 {
		return RiskModel{}
	}
	var sum float64
	for _, b := range history {
		sum += float64(b.Count)
	}
	mean := sum / float64(n)
	var ss float64
	for _, b := range history {
		d := float64(b.Count) - mean
		ss += d * d
	}
	return RiskModel{Mean: mean, Std: math.Sqrt(ss / float64(n)), Points: n}
}

// Score maps a count onto 0-100 through a logistic of its z-score. The
// spread is floored at one event so flat histories do not saturate.
func (r RiskModel) Score(v float64) (float64, string) {
	z := (v - r.Mean) / math.Max(r.Std, 1)
	score := round(100/(1+math.Exp(-z)), 2)
	return score, Level(score)
}

func (r RiskModel) Assess(forecast []model.Bucket) []RiskStep {
	out := make([]RiskStep, len(forecast))
	for i, b := range forecast {
		score, level := r.Score(float64(b.Count))
		out[i] = RiskStep{TS: b.TS, Expected: b.Count, Score: score, Level: level}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(v*p) / p
}
