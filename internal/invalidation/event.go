// Package invalidation defines the cache-busting event shared by every
// transport that can drop entries from the local caches.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/analytics"
)

// Event asks every instance to drop cached entries. Endpoint and Prefix are
// mutually exclusive; with neither set the whole target cache is cleared.
//
// Version orders events per target: an event whose version is not greater
// than the last one applied for the same target is skipped. Version 0 is
// never deduplicated.
type Event struct {
	Version  uint64    `json:"version"`
	Cache    string    `json:"cache"`
	Endpoint string    `json:"endpoint,omitempty"`
	Prefix   string    `json:"prefix,omitempty"`
	TS       time.Time `json:"ts"`
	Source   string    `json:"source,omitempty"`
}

var endpoints = map[string]struct{}{
	analytics.EndpointTimeseries: {},
	analytics.EndpointForecast:   {},
	analytics.EndpointRisk:       {},
	analytics.EndpointHotspots:   {},
	analytics.EndpointStats:      {},
}

func (e Event) Validate() error {
	if _, err := analytics.ParseTarget(e.Cache); err != nil {
		return err
	}
	ep := strings.TrimSpace(e.Endpoint)
	if ep != "" && e.Prefix != "" {
		return fmt.Errorf("endpoint and prefix are mutually exclusive")
	}
	if ep != "" {
		if _, ok := endpoints[ep]; !ok {
			return fmt.Errorf("unknown endpoint %q", ep)
		}
	}
	return nil
}

// Target is the dedupe key: events for different scopes never shadow
// each other.
func (e Event) Target() string {
	t, _ := analytics.ParseTarget(e.Cache)
	return string(t) + "|" + strings.TrimSpace(e.Endpoint) + "|" + e.Prefix
}

// Invalidator is the slice of the analytics service an event acts on.
type Invalidator interface {
	Invalidate(t analytics.Target, endpoint, source string) analytics.Invalidated
	InvalidatePrefix(t analytics.Target, prefix, source string) analytics.Invalidated
}

// Apply runs a validated event against inv.
func Apply(inv Invalidator, e Event, source string) (analytics.Invalidated, error) {
	if err := e.Validate(); err != nil {
		return analytics.Invalidated{}, err
	}
	t, _ := analytics.ParseTarget(e.Cache)
	if e.Prefix != "" {
		return inv.InvalidatePrefix(t, e.Prefix, source), nil
	}
	return inv.Invalidate(t, e.Endpoint, source), nil
}
