// Package respcache stores complete response payloads under the "resp:"
// key namespace. A hit lets a handler skip every downstream step.
package respcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
	"github.com/achintya924/Traffic-lyt/internal/cache/memstore"
)

const Name = "response"

var ErrKeyNamespace = errors.New("response cache key must start with " + keys.ResponseNamespace)

type Meta struct {
	Endpoint string `json:"endpoint"`
}

// Hit is what a lookup returns: the payload plus how long it stays valid.
type Hit[P any] struct {
	Payload   P
	Remaining time.Duration
}

type Options[P any] struct {
	MaxItems int
	Sizer    memstore.Sizer[P]
	Now      func() time.Time
}

type Cache[P any] struct {
	store *memstore.Store[P, Meta]
	now   func() time.Time
}

func New[P any](opts Options[P]) *Cache[P] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[P]{
		store: memstore.New[P, Meta](memstore.Options[P]{
			Name:     Name,
			MaxItems: opts.MaxItems,
			Sizer:    opts.Sizer,
			Now:      opts.Now,
		}),
		now: opts.Now,
	}
}

func (c *Cache[P]) Get(key string) (Hit[P], bool) {
	e, ok := c.store.Get(key)
	if !ok {
		return Hit[P]{}, false
	}
	return Hit[P]{Payload: e.Value, Remaining: e.Remaining(c.now())}, true
}

func (c *Cache[P]) Set(key string, payload P, ttl time.Duration, meta Meta) error {
	if !keys.IsResponseKey(key) {
		return fmt.Errorf("set %q: %w", key, ErrKeyNamespace)
	}
	c.store.Set(key, payload, ttl, meta)
	return nil
}

func (c *Cache[P]) InvalidatePrefix(prefix string) int {
	return c.store.InvalidatePrefix(prefix)
}

func (c *Cache[P]) InvalidateEndpoint(endpoint string) int {
	return c.store.InvalidatePrefix(keys.ResponsePrefix(endpoint))
}

func (c *Cache[P]) InvalidateAll() int {
	return c.store.InvalidatePrefix(keys.ResponseNamespace)
}

func (c *Cache[P]) CleanupExpired() int {
	return c.store.CleanupExpired()
}

func (c *Cache[P]) Stats() memstore.Stats {
	return c.store.Stats()
}
