// Package memstore is the bounded in-process TTL+LRU engine behind the
// artifact and response caches.
package memstore

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/achintya924/Traffic-lyt/internal/core/observability"
)

const DefaultMaxItems = 256

// Sizer reports the cost of a value for Stats.Size. Capacity is still
// counted in entries.
type Sizer[V any] interface {
	Size(v V) int64
}

// ConstSizer charges every value 1.
type ConstSizer[V any] struct{}

func (ConstSizer[V]) Size(V) int64 { return 1 }

type SizerFunc[V any] func(V) int64

func (f SizerFunc[V]) Size(v V) int64 { return f(v) }

type Entry[V, M any] struct {
	Value      V
	Meta       M
	CreatedAt  time.Time
	LastAccess time.Time
	// TTL <= 0 never expires.
	TTL  time.Duration
	Size int64
}

func (e *Entry[V, M]) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Remaining is the time left before expiry; zero for entries without a TTL.
func (e Entry[V, M]) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	if r := e.TTL - now.Sub(e.CreatedAt); r > 0 {
		return r
	}
	return 0
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Keys      int    `json:"keys_count"`
	Size      int64  `json:"size"`
	MaxItems  int    `json:"max_items"`
}

type Options[V any] struct {
	// Name labels metrics for this store.
	Name     string
	MaxItems int
	Sizer    Sizer[V]
	Now      func() time.Time
}

type Store[V, M any] struct {
	mu    sync.Mutex
	name  string
	max   int
	items *simplelru.LRU[string, *Entry[V, M]]
	sizer Sizer[V]
	now   func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
	size      int64
}

func New[V, M any](opts Options[V]) *Store[V, M] {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Sizer == nil {
		opts.Sizer = ConstSizer[V]{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// one spare slot so the index never evicts on its own; eviction is ours
	items, _ := simplelru.NewLRU[string, *Entry[V, M]](opts.MaxItems+1, nil)
	return &Store[V, M]{
		name:  opts.Name,
		max:   opts.MaxItems,
		items: items,
		sizer: opts.Sizer,
		now:   opts.Now,
	}
}

// Get returns a copy of the live entry for key. An expired entry is removed
// and reported as both a miss and an eviction.
func (s *Store[V, M]) Get(key string) (Entry[V, M], bool) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.items.Get(key)
	expired := false
	if ok && e.expired(now) {
		s.removeLocked(key, e)
		s.evictions++
		expired = true
		ok = false
	}
	var out Entry[V, M]
	if ok {
		e.LastAccess = now
		s.hits++
		out = *e
	} else {
		s.misses++
	}
	n := s.items.Len()
	s.mu.Unlock()

	observability.ObserveCacheLookup(s.name, ok)
	if expired {
		observability.ObserveCacheEvictions(s.name, "ttl", 1)
		observability.SetCacheEntries(s.name, n)
	}
	return out, ok
}

// Set stores value under key. Expired entries are swept first; then least
// recently used entries other than key are evicted until there is room.
func (s *Store[V, M]) Set(key string, value V, ttl time.Duration, meta M) {
	now := s.now()
	e := &Entry[V, M]{
		Value:      value,
		Meta:       meta,
		CreatedAt:  now,
		LastAccess: now,
		TTL:        ttl,
		Size:       s.sizer.Size(value),
	}

	s.mu.Lock()
	expired := s.sweepLocked(now, key)
	if old, ok := s.items.Peek(key); ok {
		s.removeLocked(key, old)
	}
	full := 0
	for s.items.Len() >= s.max {
		k, old, ok := s.items.GetOldest()
		if !ok {
			break
		}
		s.removeLocked(k, old)
		full++
	}
	s.items.Add(key, e)
	s.size += e.Size
	s.evictions += uint64(expired + full)
	n := s.items.Len()
	s.mu.Unlock()

	observability.ObserveCacheEvictions(s.name, "ttl", expired)
	observability.ObserveCacheEvictions(s.name, "capacity", full)
	observability.SetCacheEntries(s.name, n)
}

// Delete removes key; it reports whether an entry was present.
func (s *Store[V, M]) Delete(key string) bool {
	return s.Invalidate(func(k string, _ M) bool { return k == key }) > 0
}

// InvalidatePrefix removes every key starting with prefix. Invalidations
// are not evictions.
func (s *Store[V, M]) InvalidatePrefix(prefix string) int {
	return s.Invalidate(func(k string, _ M) bool { return strings.HasPrefix(k, prefix) })
}

// Invalidate removes every entry matching pred.
func (s *Store[V, M]) Invalidate(pred func(key string, meta M) bool) int {
	s.mu.Lock()
	removed := 0
	for _, k := range s.items.Keys() {
		e, ok := s.items.Peek(k)
		if !ok || !pred(k, e.Meta) {
			continue
		}
		s.removeLocked(k, e)
		removed++
	}
	n := s.items.Len()
	s.mu.Unlock()

	if removed > 0 {
		observability.SetCacheEntries(s.name, n)
	}
	return removed
}

// CleanupExpired sweeps expired entries and counts them as evictions.
func (s *Store[V, M]) CleanupExpired() int {
	now := s.now()
	s.mu.Lock()
	removed := s.sweepLocked(now, "")
	s.evictions += uint64(removed)
	n := s.items.Len()
	s.mu.Unlock()

	observability.ObserveCacheEvictions(s.name, "ttl", removed)
	observability.SetCacheEntries(s.name, n)
	return removed
}

func (s *Store[V, M]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

func (s *Store[V, M]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Keys:      s.items.Len(),
		Size:      s.size,
		MaxItems:  s.max,
	}
}

func (s *Store[V, M]) Name() string { return s.name }

// sweepLocked drops expired entries except keep; callers count evictions
func (s *Store[V, M]) sweepLocked(now time.Time, keep string) int {
	removed := 0
	for _, k := range s.items.Keys() {
		if k == keep {
			continue
		}
		e, ok := s.items.Peek(k)
		if !ok || !e.expired(now) {
			continue
		}
		s.removeLocked(k, e)
		removed++
	}
	return removed
}

func (s *Store[V, M]) removeLocked(key string, e *Entry[V, M]) {
	s.items.Remove(key)
	s.size -= e.Size
}
