// Package artifacts caches expensive intermediate results (fitted models,
// aggregated history) so repeated requests skip recomputation.
package artifacts

import (
	"time"

	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
	"github.com/achintya924/Traffic-lyt/internal/cache/memstore"
)

const Name = "model"

type Meta struct {
	Endpoint    string `json:"endpoint"`
	Granularity string `json:"granularity,omitempty"`
}

type Options struct {
	MaxItems int
	Sizer    memstore.Sizer[any]
	Now      func() time.Time
}

type Registry struct {
	store *memstore.Store[any, Meta]
}

func New(opts Options) *Registry {
	return &Registry{
		store: memstore.New[any, Meta](memstore.Options[any]{
			Name:     Name,
			MaxItems: opts.MaxItems,
			Sizer:    opts.Sizer,
			Now:      opts.Now,
		}),
	}
}

// Get returns the cached artifact for key, or false when absent or expired.
func (r *Registry) Get(key string) (any, bool) {
	e, ok := r.store.Get(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Lookup is Get with a type assertion; a value of another type is a miss.
func Lookup[T any](r *Registry, key string) (T, bool) {
	var zero T
	v, ok := r.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

func (r *Registry) Set(key string, value any, ttl time.Duration, meta Meta) {
	r.store.Set(key, value, ttl, meta)
}

func (r *Registry) InvalidatePrefix(prefix string) int {
	return r.store.InvalidatePrefix(prefix)
}

// InvalidateEndpoint drops every artifact derived for endpoint.
func (r *Registry) InvalidateEndpoint(endpoint string) int {
	return r.store.InvalidatePrefix(keys.EndpointPrefix(endpoint))
}

func (r *Registry) Invalidate(pred func(key string, meta Meta) bool) int {
	return r.store.Invalidate(pred)
}

func (r *Registry) InvalidateAll() int {
	return r.store.Invalidate(func(string, Meta) bool { return true })
}

func (r *Registry) CleanupExpired() int {
	return r.store.CleanupExpired()
}

func (r *Registry) Stats() memstore.Stats {
	return r.store.Stats()
}
