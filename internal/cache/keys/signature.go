package keys

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

// Signature collects every parameter that changes the result of a request.
// Build never fails: malformed values normalise to absent.
type Signature struct {
	Endpoint      string
	Version       string
	Granularity   string
	Anchor        string
	BBox          string
	ViolationType string
	HourStart     *int
	HourEnd       *int
	Start         *time.Time
	End           *time.Time
	Params        map[string]any
}

// FromFilters fills the scope fields of a signature from request filters.
func FromFilters(endpoint, version string, f model.Filters) Signature {
	return Signature{
		Endpoint:      endpoint,
		Version:       version,
		BBox:          f.BBox,
		ViolationType: f.ViolationType,
		HourStart:     f.HourStart,
		HourEnd:       f.HourEnd,
		Start:         f.Start,
		End:           f.End,
	}
}

func (s Signature) Build() string {
	parts := []string{
		"ep=" + escape(s.Endpoint),
		"fv=" + escape(s.Version),
		"gran=" + escape(s.Granularity),
		"anchor=" + escape(s.Anchor),
		"bbox=" + NormalizeBBox(s.BBox),
		"vt=" + escape(normalizeText(s.ViolationType)),
		"h_start=" + hour(s.HourStart),
		"h_end=" + hour(s.HourEnd),
		"start=" + ts(s.Start),
		"end=" + ts(s.End),
	}
	if len(s.Params) > 0 {
		names := make([]string, 0, len(s.Params))
		for k := range s.Params {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			v, ok := paramString(s.Params[k])
			if !ok {
				continue
			}
			parts = append(parts, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(parts, "|")
}

// NormalizeBBox rounds to 5 decimals and orders the corners as
// minLon,minLat,maxLon,maxLat. Anything unparseable becomes "".
func NormalizeBBox(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	b, err := model.ParseBBox(s)
	if err != nil {
		return ""
	}
	return strings.Join([]string{round5(b.X1), round5(b.Y1), round5(b.X2), round5(b.Y2)}, ",")
}

func round5(v float64) string {
	r := math.Round(v*1e5) / 1e5
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// categorical filters match on the trimmed value, so only the ends are cut
func normalizeText(s string) string {
	return strings.TrimSpace(s)
}

func hour(h *int) string {
	if h == nil {
		return ""
	}
	return strconv.Itoa(*h)
}

func ts(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func paramString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case *int:
		if x == nil {
			return "", false
		}
		return strconv.Itoa(*x), true
	case *float64:
		if x == nil {
			return "", false
		}
		return strconv.FormatFloat(*x, 'g', -1, 64), true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case interface{ String() string }:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// escape keeps free text from forging a field or pair boundary
func escape(s string) string {
	if !strings.ContainsAny(s, `|\=`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `|`, `\|`, `=`, `\=`)
	return r.Replace(s)
}
