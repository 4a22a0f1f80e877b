package router

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

type filterParams struct {
	Start         *time.Time `query:"start"`
	End           *time.Time `query:"end"`
	HourStart     *int       `query:"hour_start" validate:"omitempty,min=0,max=23"`
	HourEnd       *int       `query:"hour_end" validate:"omitempty,min=0,max=23"`
	ViolationType string     `query:"violation_type" validate:"max=200"`
	BBox          string     `query:"bbox" validate:"omitempty,bbox"`
}

type seriesParams struct {
	filterParams
	Granularity  string `query:"granularity" validate:"oneof=hour day"`
	LimitHistory int    `query:"limit_history" validate:"min=1,max=5000"`
}

type forecastParams struct {
	seriesParams
	Horizon *int    `query:"horizon" validate:"omitempty,min=1,max=365"`
	Model   string  `query:"model" validate:"oneof=naive ma ewm"`
	Window  int     `query:"window" validate:"min=1,max=5000"`
	Alpha   float64 `query:"alpha" validate:"min=0,max=1"`
}

type hotspotParams struct {
	filterParams
	CellM        int `query:"cell_m" validate:"min=50,max=2000"`
	RecentDays   int `query:"recent_days" validate:"min=1,max=90"`
	BaselineDays int `query:"baseline_days" validate:"min=1,max=365"`
	Limit        int `query:"limit" validate:"min=1,max=10000"`
}

type invalidateParams struct {
	Cache    string `query:"cache" validate:"omitempty,oneof=model response all"`
	Endpoint string `query:"endpoint" validate:"omitempty,oneof=timeseries forecast risk hotspots_grid stats"`
}

func (p filterParams) filters() model.Filters {
	return model.Filters{
		Start:         p.Start,
		End:           p.End,
		HourStart:     p.HourStart,
		HourEnd:       p.HourEnd,
		ViolationType: strings.TrimSpace(p.ViolationType),
		BBox:          strings.TrimSpace(p.BBox),
	}
}

// NewValidator returns a validator that reports fields by their query name
// and knows the bbox format.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("bbox", func(fl validator.FieldLevel) bool {
		b, err := model.ParseBBox(fl.Field().String())
		if err != nil {
			return false
		}
		return b.X1 >= -180 && b.X2 <= 180 && b.Y1 >= -90 && b.Y2 <= 90
	})
	return v
}

// query reads typed values out of url.Values and collects parse errors.
type query struct {
	v    url.Values
	errs []string
}

func (q *query) raw(name string) (string, bool) {
	s := strings.TrimSpace(q.v.Get(name))
	return s, s != ""
}

func (q *query) str(name, def string) string {
	if s, ok := q.raw(name); ok {
		return s
	}
	return def
}

func (q *query) integer(name string, def int) int {
	if p := q.optInt(name); p != nil {
		return *p
	}
	return def
}

func (q *query) optInt(name string) *int {
	s, ok := q.raw(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.errs = append(q.errs, fmt.Sprintf("%s: must be an integer", name))
		return nil
	}
	return &n
}

func (q *query) float(name string, def float64) float64 {
	s, ok := q.raw(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.errs = append(q.errs, fmt.Sprintf("%s: must be a number", name))
		return def
	}
	return f
}

func (q *query) timestamp(name string) *time.Time {
	s, ok := q.raw(name)
	if !ok {
		return nil
	}
	t, err := violations.ParseTime(s)
	if err != nil {
		q.errs = append(q.errs, fmt.Sprintf("%s: must be an ISO 8601 timestamp", name))
		return nil
	}
	return &t
}

func (q *query) filters() filterParams {
	return filterParams{
		Start:         q.timestamp("start"),
		End:           q.timestamp("end"),
		HourStart:     q.optInt("hour_start"),
		HourEnd:       q.optInt("hour_end"),
		ViolationType: q.str("violation_type", ""),
		BBox:          q.str("bbox", ""),
	}
}

func (q *query) series() seriesParams {
	return seriesParams{
		filterParams: q.filters(),
		Granularity:  q.str("granularity", string(model.GranularityHour)),
		LimitHistory: q.integer("limit_history", 500),
	}
}

func (q *query) forecast() forecastParams {
	return forecastParams{
		seriesParams: q.series(),
		Horizon:      q.optInt("horizon"),
		Model:        q.str("model", "ma"),
		Window:       q.integer("window", 6),
		Alpha:        q.float("alpha", 0.3),
	}
}

func (q *query) hotspots() hotspotParams {
	return hotspotParams{
		filterParams: q.filters(),
		CellM:        q.integer("cell_m", 250),
		RecentDays:   q.integer("recent_days", 7),
		BaselineDays: q.integer("baseline_days", 30),
		Limit:        q.integer("limit", 3000),
	}
}

// validationDetail renders validator errors as "field: rule" lines.
func validationDetail(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s: must be >= %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s: must be <= %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of %s", fe.Field(), fe.Param()))
		case "bbox":
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), model.ErrInvalidBBox))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
