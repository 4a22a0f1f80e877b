// Package predict holds the count models served by the analytics endpoints.
// Every model is deterministic and side-effect free.
package predict

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

type ModelName string

const (
	ModelNaive ModelName = "naive"
	ModelMA    ModelName = "ma"
	ModelEWM   ModelName = "ewm"
)

const (
	DefaultWindow = 6
	DefaultAlpha  = 0.3
)

var ErrUnknownModel = errors.New("unsupported forecast model")

func (m ModelName) Valid() bool {
	return m == ModelNaive || m == ModelMA || m == ModelEWM
}

// DefaultHorizon is one day of hourly buckets or one week of daily ones.
func DefaultHorizon(g model.Granularity) int {
	if g == model.GranularityDay {
		return 7
	}
	return 24
}

type ForecastParams struct {
	Model  ModelName
	Window int
	Alpha  float64
}

// Fitted is a forecast model reduced to what prediction needs; it is the
// artifact kept in the model cache.
type Fitted struct {
	Model  ModelName
	Window int
	Alpha  float64
	Level  float64
	LastTS time.Time
	Step   time.Duration
	Empty  bool
}

// Fit reduces history to a single level: the last count (naive), the mean
// of the last Window counts (ma) or an exponentially weighted mean seeded
// with the first count (ewm).
func Fit(history []model.Bucket, g model.Granularity, p ForecastParams) (Fitted, error) {
	if p.Model == "" {
		p.Model = ModelMA
	}
	if !p.Model.Valid() {
		return Fitted{}, fmt.Errorf("%w: %q", ErrUnknownModel, p.Model)
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	f := Fitted{Model: p.Model, Window: p.Window, Alpha: p.Alpha, Step: g.Step()}
	if len(history) == 0 {
		f.Empty = true
		return f, nil
	}
	f.LastTS = history[len(history)-1].TS

	switch p.Model {
	case ModelNaive:
		f.Level = float64(history[len(history)-1].Count)
	case ModelMA:
		n := min(p.Window, len(history))
		sum := 0
		for _, b := range history[len(history)-n:] {
			sum += b.Count
		}
		f.Level = float64(sum) / float64(n)
	case ModelEWM:
		ewm := float64(history[0].Count)
		for _, b := range history[1:] {
			ewm = p.Alpha*float64(b.Count) + (1-p.Alpha)*ewm
		}
		f.Level = ewm
	}
	return f, nil
}

// Predict emits horizon buckets after the last observed one, all carrying
// the rounded, non-negative level.
func (f Fitted) Predict(horizon int) []model.Bucket {
	if f.Empty || horizon <= 0 {
		return []model.Bucket{}
	}
	count := int(math.Max(0, math.RoundToEven(f.Level)))
	out := make([]model.Bucket, horizon)
	for i := range out {
		out[i] = model.Bucket{TS: f.LastTS.Add(time.Duration(i+1) * f.Step), Count: count}
	}
	return out
}

func Forecast(history []model.Bucket, g model.Granularity, horizon int, p ForecastParams) ([]model.Bucket, error) {
	f, err := Fit(history, g, p)
	if err != nil {
		return nil, err
	}
	return f.Predict(horizon), nil
}
