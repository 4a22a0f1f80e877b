package predict

import (
	"errors"
	"testing"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

var t0 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func hourly(counts ...int) []model.Bucket {
	out := make([]model.Bucket, len(counts))
	for i, c := range counts {
		out[i] = model.Bucket{TS: t0.Add(time.Duration(i) * time.Hour), Count: c}
	}
	return out
}

func TestForecast_Models(t *testing.T) {
	h := hourly(10, 0, 4, 6, 2, 8, 7)
	cases := []struct {
		p    ForecastParams
		want int
	}{
		{ForecastParams{Model: ModelNaive}, 7},
		// mean of last 6: (0+4+6+2+8+7)/6 = 4.5 -> 4 (half to even)
		{ForecastParams{Model: ModelMA, Window: 6}, 4},
		{ForecastParams{Model: ModelMA, Window: 3}, 6},
		{ForecastParams{Model: ModelMA, Window: 50}, 5},
		// default model is ma with window 6
		{ForecastParams{}, 4},
		{ForecastParams{Model: ModelEWM, Alpha: 1}, 7},
		{ForecastParams{Model: ModelEWM, Alpha: 0}, 10},
	}
	for _, tc := range cases {
		got, err := Forecast(h, model.GranularityHour, 3, tc.p)
		if err != nil {
			t.Fatalf("%+v: %v", tc.p, err)
		}
		if len(got) != 3 {
			t.Fatalf("%+v: len=%d", tc.p, len(got))
		}
		for i, b := range got {
			if b.Count != tc.want {
				t.Fatalf("%+v: step %d count=%d want %d", tc.p, i, b.Count, tc.want)
			}
			wantTS := h[len(h)-1].TS.Add(time.Duration(i+1) * time.Hour)
			if !b.TS.Equal(wantTS) {
				t.Fatalf("%+v: step %d ts=%v want %v", tc.p, i, b.TS, wantTS)
			}
		}
	}
}

func TestForecast_EdgeCases(t *testing.T) {
	if _, err := Forecast(hourly(1), model.GranularityHour, 2, ForecastParams{Model: "arima"}); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err=%v want ErrUnknownModel", err)
	}
	got, err := Forecast(nil, model.GranularityDay, 7, ForecastParams{})
	if err != nil || len(got) != 0 {
		t.Fatalf("empty history: %v %v", got, err)
	}
	got, _ = Forecast(hourly(3), model.GranularityHour, 0, ForecastParams{})
	if len(got) != 0 {
		t.Fatalf("zero horizon produced %d buckets", len(got))
	}

	day := []model.Bucket{{TS: t0, Count: 5}}
	got, _ = Forecast(day, model.GranularityDay, 2, ForecastParams{Model: ModelNaive})
	if !got[1].TS.Equal(t0.Add(48 * time.Hour)) {
		t.Fatalf("day step ts=%v", got[1].TS)
	}
	if DefaultHorizon(model.GranularityDay) != 7 || DefaultHorizon(model.GranularityHour) != 24 {
		t.Fatalf("default horizons")
	}
}

func TestRisk(t *testing.T) {
	r := FitRisk(hourly(2, 4, 4, 4, 5, 5, 7, 9))
	if r.Mean != 5 || r.Std != 2 || r.Points != 8 {
		t.Fatalf("risk model=%+v", r)
	}
	if s, lvl := r.Score(5); s != 50 || lvl != LevelMedium {
		t.Fatalf("score at mean=%v %s", s, lvl)
	}
	if _, lvl := r.Score(11); lvl != LevelHigh {
		t.Fatalf("high count level=%s", lvl)
	}
	if _, lvl := r.Score(0); lvl != LevelLow {
		t.Fatalf("zero count level=%s", lvl)
	}

	steps := r.Assess(hourly(5, 11))
	if len(steps) != 2 || steps[0].Expected != 5 || steps[1].Level != LevelHigh {
		t.Fatalf("steps=%+v", steps)
	}

	flat := FitRisk(hourly(3, 3, 3))
	if s, _ := flat.Score(3); s != 50 {
		t.Fatalf("flat score=%v", s)
	}
	if empty := FitRisk(nil); empty.Points != 0 {
		t.Fatalf("empty=%+v", empty)
	}
}

func TestLevel(t *testing.T) {
	for score, want := range map[float64]string{0: LevelLow, 39.99: LevelLow, 40: LevelMedium, 69.99: LevelMedium, 70: LevelHigh, 100: LevelHigh} {
		if got := Level(score); got != want {
			t.Fatalf("Level(%v)=%s want %s", score, got, want)
		}
	}
}
