package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	mylog "github.com/achintya924/Traffic-lyt/internal/logger"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	m := map[string]any{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("bad log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
		if mylog.OutcomeFrom(r.Context()) == nil {
			t.Fatalf("outcome collector missing")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("seen=%q header=%q", seen, rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if len(seen) != 32 || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("oversized id not replaced: %q", seen)
	}
}

func TestLogging_SlowAndOutcome(t *testing.T) {
	var buf bytes.Buffer
	zl := mylog.Build(mylog.Config{Level: "info"}, &buf)
	l := mylog.NewSlog(&zl)

	h := RequestID()(Logging(l, time.Millisecond, ClientKey(false))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mylog.OutcomeFrom(r.Context()).SetResponseCache(true)
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodGet, "/predict/risk", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	h.ServeHTTP(httptest.NewRecorder(), req)

	m := lastLine(t, &buf)
	if m["level"] != "warn" || m["slow"] != true || m["status"].(float64) != 418 {
		t.Fatalf("line=%v", m)
	}
	if m["response_cache_hit"] != true || m["client_ip"] != "203.0.113.9" || m["request_id"] == nil {
		t.Fatalf("line=%v", m)
	}
	if _, ok := m["elapsed_ms"].(float64); !ok {
		t.Fatalf("elapsed_ms missing: %v", m)
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	zl := mylog.Build(mylog.Config{Level: "info"}, &buf)
	l := mylog.NewSlog(&zl)

	h := Logging(l, 0, nil)(Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
	if m := lastLine(t, &buf); m["level"] != "error" || m["status"].(float64) != 500 {
		t.Fatalf("completion line=%v", m)
	}
}

func TestRateLimit(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{Limits: map[string]int{"predict": 1}})
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequestID()(RateLimit(lim, "predict", ClientKey(true))(ok))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/predict/forecast", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("198.51.100.1"); rec.Code != http.StatusOK {
		t.Fatalf("first code=%d", rec.Code)
	}
	rec := do("198.51.100.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second code=%d retry=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	var body rateLimited
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Group != "predict" || body.RetryAfterSeconds < 1 {
		t.Fatalf("body=%+v", body)
	}
	// a trusted proxy header gives every client its own window
	if rec := do("198.51.100.2"); rec.Code != http.StatusOK {
		t.Fatalf("other client code=%d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://any.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://any.example" {
		t.Fatalf("wildcard origin not allowed")
	}
}
