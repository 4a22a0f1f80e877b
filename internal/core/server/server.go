// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/achintya924/Traffic-lyt/internal/core/config"
	"github.com/achintya924/Traffic-lyt/internal/core/health"
	"github.com/achintya924/Traffic-lyt/internal/core/middleware"
	"github.com/achintya924/Traffic-lyt/internal/core/router"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
)

type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Handlers *router.Handlers
	Limiter  *ratelimit.Limiter
	Ready    health.ReadinessReporter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the route tree. Every analytics group sits behind its
// own limiter group; probes and metrics are never limited.
func NewRouter(d Deps) http.Handler {
	if d.Ready == nil {
		d.Ready = health.Ready{}
	}
	clientKey := middleware.ClientKey(d.Config.RateLimit.TrustProxyHeaders)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(d.Logger, d.Config.SlowThreshold, clientKey))
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.CORS(d.Config.CORSOrigins))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter, ratelimit.GroupPredict, clientKey))
		r.Get("/predict/timeseries", d.Handlers.Timeseries)
		r.Get("/predict/forecast", d.Handlers.Forecast)
		r.Get("/predict/risk", d.Handlers.Risk)
		r.Get("/predict/hotspots/grid", d.Handlers.Hotspots)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter, ratelimit.GroupStats, clientKey))
		r.Get("/violations/stats", d.Handlers.Stats)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Limiter, ratelimit.GroupOther, clientKey))
		r.Get("/admin/cache/stats", d.Handlers.AdminStats)
		r.Post("/admin/cache/invalidate", d.Handlers.AdminInvalidate)
	})
	return r
}

// Run serves until ctx is done, then drains in-flight requests.
func Run(ctx context.Context, d Deps) error {
	srv := &http.Server{
		Addr:              d.Config.Addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Logger.Info("http listen", "addr", d.Config.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
