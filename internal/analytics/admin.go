package analytics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/achintya924/Traffic-lyt/internal/cache/artifacts"
	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
	"github.com/achintya924/Traffic-lyt/internal/cache/memstore"
	"github.com/achintya924/Traffic-lyt/internal/cache/respcache"
	"github.com/achintya924/Traffic-lyt/internal/core/observability"
)

// Target names which cache an invalidation applies to.
type Target string

const (
	TargetModel    Target = "model"
	TargetResponse Target = "response"
	TargetAll      Target = "all"
)

var ErrUnknownTarget = errors.New("cache must be one of model, response, all")

func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetModel, TargetResponse, TargetAll:
		return t, nil
	case "":
		return TargetAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
	}
}

type Invalidated struct {
	Model    int `json:"model"`
	Response int `json:"response"`
}

type CacheStats struct {
	Model    memstore.Stats `json:"model"`
	Response memstore.Stats `json:"response"`
}

func (s *Service) CacheStats() CacheStats {
	return CacheStats{Model: s.models.Stats(), Response: s.responses.Stats()}
}

// Invalidate drops entries for one endpoint, or everything when endpoint
// is empty. source labels the metric (admin, kafka).
func (s *Service) Invalidate(t Target, endpoint, source string) Invalidated {
	endpoint = strings.TrimSpace(endpoint)
	var out Invalidated
	if t == TargetModel || t == TargetAll {
		if endpoint == "" {
			out.Model = s.models.InvalidateAll()
		} else {
			out.Model = s.models.InvalidateEndpoint(endpoint)
		}
	}
	if t == TargetResponse || t == TargetAll {
		if endpoint == "" {
			out.Response = s.responses.InvalidateAll()
		} else {
			out.Response = s.responses.InvalidateEndpoint(endpoint)
		}
	}
	s.record(out, source)
	s.log.Info("cache invalidated", "cache", string(t), "endpoint", endpoint, "source", source,
		"model", out.Model, "response", out.Response)
	return out
}

// InvalidatePrefix drops keys under a raw prefix. A prefix in the response
// namespace only ever touches the response cache and vice versa.
func (s *Service) InvalidatePrefix(t Target, prefix, source string) Invalidated {
	var out Invalidated
	resp := keys.IsResponseKey(prefix)
	if (t == TargetModel || t == TargetAll) && !resp {
		out.Model = s.models.InvalidatePrefix(prefix)
	}
	if (t == TargetResponse || t == TargetAll) && (resp || prefix == "") {
		out.Response = s.responses.InvalidatePrefix(prefix)
	}
	s.record(out, source)
	return out
}

func (s *Service) record(out Invalidated, source string) {
	observability.ObserveCacheInvalidation(artifacts.Name, source, out.Model)
	observability.ObserveCacheInvalidation(respcache.Name, source, out.Response)
}
