// Package ratelimit implements fixed-window admission control per
// (client, group).
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/core/observability"
)

const (
	GroupPredict = "predict"
	GroupStats   = "stats"
	GroupOther   = "other"

	DefaultWindow = 60 * time.Second
)

// DefaultLimits are requests per window.
func DefaultLimits() map[string]int {
	return map[string]int{
		GroupPredict: 30,
		GroupStats:   60,
		GroupOther:   60,
	}
}

type Config struct {
	// Limits per group; a group not listed uses the "other" limit. A limit
	// <= 0 disables limiting for that group.
	Limits map[string]int
	Window time.Duration
	// PurgeAfter is how long an untouched entry survives; 2x Window when zero.
	PurgeAfter time.Duration
	Disabled   bool
	Now        func() time.Time
}

type entry struct {
	count       int
	windowStart time.Time
}

type key struct {
	client string
	group  string
}

type Limiter struct {
	mu         sync.Mutex
	limits     map[string]int
	window     time.Duration
	purgeAfter time.Duration
	disabled   bool
	now        func() time.Time

	entries   map[key]*entry
	lastPurge time.Time
	allowed   map[string]uint64
	blocked   map[string]uint64
}

func New(cfg Config) *Limiter {
	limits := DefaultLimits()
	for g, n := range cfg.Limits {
		limits[g] = n
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = 2 * cfg.Window
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		limits:     limits,
		window:     cfg.Window,
		purgeAfter: cfg.PurgeAfter,
		disabled:   cfg.Disabled,
		now:        cfg.Now,
		entries:    map[key]*entry{},
		lastPurge:  cfg.Now(),
		allowed:    map[string]uint64{},
		blocked:    map[string]uint64{},
	}
}

func (l *Limiter) Limit(group string) int {
	if n, ok := l.limits[group]; ok {
		return n
	}
	return l.limits[GroupOther]
}

func (l *Limiter) Window() time.Duration { return l.window }

func (l *Limiter) Disabled() bool { return l.disabled }

// Check admits or rejects one request. When rejected, retryAfter is the
// whole seconds until the current window ends, at least 1.
func (l *Limiter) Check(clientID, group string) (allowed bool, retryAfter int) {
	if l.disabled {
		return true, 0
	}
	limit := l.Limit(group)
	if limit <= 0 {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	l.purgeLocked(now)
	k := key{client: clientID, group: group}
	e, ok := l.entries[k]
	switch {
	case !ok:
		l.entries[k] = &entry{count: 1, windowStart: now}
		allowed = true
	case now.Sub(e.windowStart) >= l.window:
		e.count = 1
		e.windowStart = now
		allowed = true
	default:
		e.count++
		if e.count <= limit {
			allowed = true
		} else {
			left := l.window - now.Sub(e.windowStart)
			retryAfter = max(1, int(math.Ceil(left.Seconds())))
		}
	}
	if allowed {
		l.allowed[group]++
	} else {
		l.blocked[group]++
	}
	l.mu.Unlock()

	observability.ObserveRateLimit(group, allowed)
	return allowed, retryAfter
}

// purgeLocked runs at most once per purgeAfter
func (l *Limiter) purgeLocked(now time.Time) {
	if now.Sub(l.lastPurge) < l.purgeAfter {
		return
	}
	l.lastPurge = now
	for k, e := range l.entries {
		if now.Sub(e.windowStart) > l.purgeAfter {
			delete(l.entries, k)
		}
	}
}

type Stats struct {
	Allowed map[string]uint64 `json:"allowed"`
	Blocked map[string]uint64 `json:"blocked"`
	Limits  map[string]int    `json:"limits"`
	Window  int               `json:"window_seconds"`
	Clients int               `json:"tracked_clients"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Stats{
		Allowed: make(map[string]uint64, len(l.allowed)),
		Blocked: make(map[string]uint64, len(l.blocked)),
		Limits:  make(map[string]int, len(l.limits)),
		Window:  int(l.window / time.Second),
		Clients: len(l.entries),
	}
	for g, n := range l.allowed {
		st.Allowed[g] = n
	}
	for g, n := range l.blocked {
		st.Blocked[g] = n
	}
	for g, n := range l.limits {
		st.Limits[g] = n
	}
	return st
}
