// Package analytics serves the predictive endpoints. Each request is
// anchored to the data it covers, keyed on that anchor, and answered from
// the response cache when possible; otherwise the fitted artifacts are
// looked up or rebuilt and both caches are filled.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/cache/artifacts"
	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
	"github.com/achintya924/Traffic-lyt/internal/cache/memstore"
	"github.com/achintya924/Traffic-lyt/internal/cache/respcache"
	"github.com/achintya924/Traffic-lyt/internal/core/model"
	"github.com/achintya924/Traffic-lyt/internal/logger"
	"github.com/achintya924/Traffic-lyt/internal/mapper"
	"github.com/achintya924/Traffic-lyt/internal/timeanchor"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

const (
	EndpointTimeseries = "timeseries"
	EndpointForecast   = "forecast"
	EndpointRisk       = "risk"
	EndpointHotspots   = "hotspots_grid"
	EndpointStats      = "stats"
)

const (
	defaultModelTTL     = 10 * time.Minute
	defaultResponseTTL  = 90 * time.Second
	defaultHistoryLimit = 500
)

// CacheFlag reports how one cache took part in a response.
type CacheFlag struct {
	Hit        bool    `json:"hit"`
	KeyHash    string  `json:"key_hash"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

type Meta struct {
	timeanchor.Meta
	Endpoint      string     `json:"endpoint"`
	ResponseCache CacheFlag  `json:"response_cache"`
	ModelCache    *CacheFlag `json:"model_cache,omitempty"`
}

// Result is a response ready to be written: Data is already encoded.
type Result struct {
	Data json.RawMessage `json:"data"`
	Meta Meta            `json:"meta"`
	ETag string          `json:"-"`
}

// Payload is what the response cache holds for one key.
type Payload struct {
	Data       json.RawMessage
	Window     timeanchor.Meta
	ModelCache *CacheFlag
	ETag       string
}

type Options struct {
	FeatureVersion  string
	ResponseVersion string
	ModelTTL        time.Duration
	// ResponseTTL picks the TTL per endpoint; a constant when nil.
	ResponseTTL  func(endpoint string) time.Duration
	HistoryLimit int
	Logger       *slog.Logger
}

type Service struct {
	src       violations.Source
	grid      mapper.Grid
	models    *artifacts.Registry
	responses *respcache.Cache[*Payload]
	opts      Options
	log       *slog.Logger
}

func New(src violations.Source, grid mapper.Grid, models *artifacts.Registry, responses *respcache.Cache[*Payload], opts Options) *Service {
	if opts.FeatureVersion == "" {
		opts.FeatureVersion = keys.FeatureVersion
	}
	if opts.ResponseVersion == "" {
		opts.ResponseVersion = keys.ResponseVersion
	}
	if opts.ModelTTL <= 0 {
		opts.ModelTTL = defaultModelTTL
	}
	if opts.ResponseTTL == nil {
		opts.ResponseTTL = func(string) time.Duration { return defaultResponseTTL }
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		src:       src,
		grid:      grid,
		models:    models,
		responses: responses,
		opts:      opts,
		log:       opts.Logger,
	}
}

// PayloadSizer reports the encoded data size of a cached response.
func PayloadSizer() memstore.Sizer[*Payload] {
	return memstore.SizerFunc[*Payload](func(p *Payload) int64 {
		if p == nil {
			return 0
		}
		return int64(len(p.Data))
	})
}

// request is the cache-relevant description of one endpoint call.
type request struct {
	endpoint string
	filters  model.Filters
	gran     model.Granularity
	params   map[string]any
}

type computed struct {
	data  any
	model *CacheFlag
	// window replaces the anchored window in meta when the endpoint
	// derives its own effective span
	window *timeanchor.Window
}

type computeFunc func(ctx context.Context, w timeanchor.Window, f model.Filters, sig keys.Signature) (computed, error)

func (s *Service) signature(req request, w timeanchor.Window) keys.Signature {
	sig := keys.FromFilters(req.endpoint, s.opts.FeatureVersion, req.filters)
	sig.Granularity = string(req.gran)
	sig.Anchor = w.AnchorString()
	sig.Params = req.params
	return sig
}

func (s *Service) serve(ctx context.Context, req request, compute computeFunc) (*Result, error) {
	w, err := timeanchor.Anchor(ctx, s.src, req.filters, timeanchor.Options{})
	if err != nil {
		return nil, err
	}
	sig := s.signature(req, w)
	key := keys.ResponseKey(req.endpoint, sig.Build(), w.AnchorString(),
		timeanchor.Format(w.Start), timeanchor.Format(w.End), s.opts.ResponseVersion)
	keyHash := keys.ShortHash(key)
	outcome := logger.OutcomeFrom(ctx)

	if hit, ok := s.responses.Get(key); ok {
		outcome.SetResponseCache(true)
		s.log.DebugContext(ctx, "response cache hit", "endpoint", req.endpoint, "key_hash", keyHash)
		return &Result{
			Data: hit.Payload.Data,
			ETag: hit.Payload.ETag,
			Meta: Meta{
				Meta:          hit.Payload.Window,
				Endpoint:      req.endpoint,
				ResponseCache: CacheFlag{Hit: true, KeyHash: keyHash, TTLSeconds: seconds(hit.Remaining)},
				ModelCache:    hit.Payload.ModelCache,
			},
		}, nil
	}
	outcome.SetResponseCache(false)

	start := time.Now()
	out, err := compute(ctx, w, w.Filters(req.filters), sig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.endpoint, err)
	}
	data, err := json.Marshal(out.data)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", req.endpoint, err)
	}
	window := w
	if out.window != nil {
		window = *out.window
	}
	p := &Payload{Data: data, Window: window.Meta(), ModelCache: out.model, ETag: ETag(data)}
	ttl := s.opts.ResponseTTL(req.endpoint)
	if err := s.responses.Set(key, p, ttl, respcache.Meta{Endpoint: req.endpoint}); err != nil {
		// unreachable with keys from ResponseKey; serve uncached
		s.log.WarnContext(ctx, "response cache set", "endpoint", req.endpoint, "err", err)
	}
	s.log.DebugContext(ctx, "analytics computed",
		"endpoint", req.endpoint,
		"key_hash", keyHash,
		"duration", time.Since(start))

	return &Result{
		Data: p.Data,
		ETag: p.ETag,
		Meta: Meta{
			Meta:          p.Window,
			Endpoint:      req.endpoint,
			ResponseCache: CacheFlag{Hit: false, KeyHash: keyHash, TTLSeconds: seconds(ttl)},
			ModelCache:    p.ModelCache,
		},
	}, nil
}

// artifact returns the cached value under the model key for sig, building
// and storing it on a miss.
func artifact[T any](ctx context.Context, s *Service, sig keys.Signature, build func() (T, error)) (T, *CacheFlag, error) {
	key := keys.DeriveKey(sig.Endpoint, sig.Build(), s.opts.FeatureVersion)
	flag := &CacheFlag{KeyHash: keys.ShortHash(key), TTLSeconds: seconds(s.opts.ModelTTL)}
	outcome := logger.OutcomeFrom(ctx)

	if v, ok := artifacts.Lookup[T](s.models, key); ok {
		outcome.SetModelCache(true)
		flag.Hit = true
		return v, flag, nil
	}
	outcome.SetModelCache(false)

	v, err := build()
	if err != nil {
		var zero T
		return zero, nil, err
	}
	s.models.Set(key, v, s.opts.ModelTTL, artifacts.Meta{Endpoint: sig.Endpoint, Granularity: sig.Granularity})
	return v, flag, nil
}

// ETag is a strong validator over the encoded data.
func ETag(data []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
}

func seconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000
}
