// Package middleware defines HTTP middlewares for the core server.
package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/achintya924/Traffic-lyt/internal/core/observability"
	mylog "github.com/achintya924/Traffic-lyt/internal/logger"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
)

const maxRequestIDLen = 128

// ClientKey identifies the caller for rate limiting and logs. Forwarding
// headers are honoured only behind a trusted proxy.
func ClientKey(trustProxy bool) httprate.KeyFunc {
	if trustProxy {
		return httprate.KeyByRealIP
	}
	return httprate.KeyByIP
}

// RequestID echoes a caller supplied X-Request-ID or mints one, and seeds
// the context with the id and an outcome collector.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if reqID == "" || len(reqID) > maxRequestIDLen {
				reqID = mylog.NewID()
			}
			w.Header().Set("X-Request-ID", reqID)
			ctx := mylog.WithRequestID(r.Context(), reqID)
			ctx = mylog.WithComponent(ctx, "http")
			ctx, _ = mylog.WithOutcome(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.code = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Logging writes one completion line per request and feeds the HTTP
// metrics. Requests slower than slow are flagged.
func Logging(l *slog.Logger, slow time.Duration, clientKey httprate.KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			observability.ObserveHTTP(r.Method, route, sw.code, elapsed.Seconds())

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.code),
				slog.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
			}
			if clientKey != nil {
				if ip, err := clientKey(r); err == nil {
					attrs = append(attrs, slog.String("client_ip", ip))
				}
			}
			for k, v := range mylog.OutcomeFrom(r.Context()).Fields() {
				attrs = append(attrs, slog.Bool(k, v))
			}
			level := slog.LevelInfo
			if slow > 0 && elapsed > slow {
				attrs = append(attrs, slog.Bool("slow", true))
				level = slog.LevelWarn
			}
			if sw.code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			l.LogAttrs(r.Context(), level, "http request", attrs...)
		}
		return http.HandlerFunc(fn)
	}
}

// Recover turns a handler panic into a 500.
func Recover(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					l.ErrorContext(r.Context(), "panic recovered", "err", rec, "path", r.URL.Path)
					writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// CORS allows the listed origins; "*" allows any.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (wildcard || slices.Contains(origins, origin))
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID, Retry-After")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h := w.Header()
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, If-None-Match")
					h.Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

type rateLimited struct {
	Detail            string `json:"detail"`
	Group             string `json:"group"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// RateLimit gates a route group through lim. A rejected request gets a 429
// with a Retry-After hint; a request whose client cannot be identified is
// let through.
func RateLimit(lim *ratelimit.Limiter, group string, clientKey httprate.KeyFunc) func(http.Handler) http.Handler {
	if clientKey == nil {
		clientKey = httprate.KeyByIP
	}
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			client, err := clientKey(r)
			if err != nil || client == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, retryAfter := lim.Check(client, group)
			if !allowed {
				mylog.OutcomeFrom(r.Context()).SetRateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, rateLimited{
					Detail:            "Rate limit exceeded",
					Group:             group,
					RetryAfterSeconds: retryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
