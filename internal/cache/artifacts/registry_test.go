package artifacts

import (
	"testing"
	"time"

	"github.com/achintya924/Traffic-lyt/internal/cache/keys"
)

type fitted struct{ Mean float64 }

func TestRegistry_SetGetLookup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(Options{MaxItems: 8, Now: func() time.Time { return now }})

	k := keys.DeriveKey("risk", "sig", keys.FeatureVersion)
	if _, ok := r.Get(k); ok {
		t.Fatalf("expected miss")
	}
	r.Set(k, &fitted{Mean: 3.5}, time.Minute, Meta{Endpoint: "risk", Granularity: "hour"})

	m, ok := Lookup[*fitted](r, k)
	if !ok || m.Mean != 3.5 {
		t.Fatalf("Lookup=%+v,%v", m, ok)
	}
	if _, ok := Lookup[string](r, k); ok {
		t.Fatalf("wrong type must be a miss")
	}
	st := r.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Keys != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestRegistry_InvalidateEndpointAndMeta(t *testing.T) {
	r := New(Options{MaxItems: 8})
	r.Set(keys.DeriveKey("risk", "a", "v1"), 1, time.Minute, Meta{Endpoint: "risk", Granularity: "hour"})
	r.Set(keys.DeriveKey("risk", "b", "v1"), 2, time.Minute, Meta{Endpoint: "risk", Granularity: "day"})
	r.Set(keys.DeriveKey("forecast", "a", "v1"), 3, time.Minute, Meta{Endpoint: "forecast", Granularity: "day"})

	if n := r.Invalidate(func(_ string, m Meta) bool { return m.Granularity == "day" && m.Endpoint == "risk" }); n != 1 {
		t.Fatalf("Invalidate=%d want 1", n)
	}
	if n := r.InvalidateEndpoint("risk"); n != 1 {
		t.Fatalf("InvalidateEndpoint=%d want 1", n)
	}
	if n := r.InvalidateAll(); n != 1 {
		t.Fatalf("InvalidateAll=%d want 1", n)
	}
}

func TestRegistry_CleanupExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := New(Options{MaxItems: 8, Now: func() time.Time { return now }})
	r.Set("risk:a", 1, time.Second, Meta{Endpoint: "risk"})
	now = now.Add(2 * time.Second)
	if n := r.CleanupExpired(); n != 1 {
		t.Fatalf("CleanupExpired=%d want 1", n)
	}
	if st := r.Stats(); st.Evictions != 1 {
		t.Fatalf("evictions=%d want 1", st.Evictions)
	}
}
