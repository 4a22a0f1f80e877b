// Package ogc builds WFS GetFeature requests against GeoServer.
package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/model"
)

const (
	DefaultGeomField = "geom"
	TimeField        = "occurred_at"
	TypeField        = "violation_type"
)

func OWSEndpoint(geoServerBase string) string {
	return strings.TrimRight(geoServerBase, "/") + "/ows"
}

type Query struct {
	Layer     string
	GeomField string
	BBox      *model.BBox
	CQL       string
	// SortBy is "field A" or "field D".
	SortBy       string
	Count        int
	PropertyName []string
}

func BuildGetFeatureParams(q Query) url.Values {
	return BuildGetFeatureParamsFormat(q, "application/json")
}

func BuildGetFeatureParamsFormat(q Query, outputFormat string) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", q.Layer)

	// bbox and cql_filter are mutually exclusive in GeoServer; fold bbox into cql when both
	switch {
	case q.BBox != nil && q.CQL == "":
		params.Set("bbox", q.BBox.String())
	case q.BBox != nil:
		params.Set("cql_filter", fmt.Sprintf("(%s) AND (%s)", bboxCQL(q.GeomField, *q.BBox), q.CQL))
	case q.CQL != "":
		params.Set("cql_filter", q.CQL)
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.Count > 0 {
		params.Set("count", strconv.Itoa(q.Count))
	}
	if len(q.PropertyName) > 0 {
		params.Set("propertyName", strings.Join(q.PropertyName, ","))
	}
	if strings.TrimSpace(outputFormat) == "" {
		outputFormat = "application/json"
	}
	params.Set("outputFormat", outputFormat)
	return params
}

// ViolationQuery translates filters into a query. Hour-of-day bounds have no
// portable ECQL form and are left to the caller.
func ViolationQuery(layer string, f model.Filters) Query {
	q := Query{Layer: layer, GeomField: DefaultGeomField}
	if b, ok := f.ParsedBBox(); ok {
		q.BBox = &b
	}
	var clauses []string
	if vt := strings.TrimSpace(f.ViolationType); vt != "" {
		clauses = append(clauses, fmt.Sprintf("%s = '%s'", TypeField, quote(vt)))
	}
	if f.Start != nil {
		clauses = append(clauses, fmt.Sprintf("%s >= '%s'", TimeField, f.Start.UTC().Format(time.RFC3339)))
	}
	if f.End != nil {
		clauses = append(clauses, fmt.Sprintf("%s <= '%s'", TimeField, f.End.UTC().Format(time.RFC3339)))
	}
	q.CQL = strings.Join(clauses, " AND ")
	return q
}

func bboxCQL(geom string, b model.BBox) string {
	if geom == "" {
		geom = DefaultGeomField
	}
	return fmt.Sprintf("BBOX(%s,%.6f,%.6f,%.6f,%.6f)", geom, b.X1, b.Y1, b.X2, b.Y2)
}

// ECQL string literals escape a single quote by doubling it
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
