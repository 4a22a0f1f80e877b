package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/achintya924/Traffic-lyt/internal/analytics"
	"github.com/achintya924/Traffic-lyt/internal/cache/artifacts"
	"github.com/achintya924/Traffic-lyt/internal/cache/respcache"
	"github.com/achintya924/Traffic-lyt/internal/core/config"
	"github.com/achintya924/Traffic-lyt/internal/core/observability"
	"github.com/achintya924/Traffic-lyt/internal/core/router"
	"github.com/achintya924/Traffic-lyt/internal/core/server"
	"github.com/achintya924/Traffic-lyt/internal/logger"
	h3mapper "github.com/achintya924/Traffic-lyt/internal/mapper/h3"
	"github.com/achintya924/Traffic-lyt/internal/metrics"
	"github.com/achintya924/Traffic-lyt/internal/ratelimit"
	"github.com/achintya924/Traffic-lyt/pkg/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding the data file via flag
	fileFlag := flag.String("violations-file", "", "serve from a GeoJSON file instead of GeoServer")
	flag.Parse()

	cfg := config.FromEnv()
	if *fileFlag != "" {
		cfg.ViolationsFile = strings.TrimSpace(*fileFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "traffic-lyt",
		Component: "api",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	mcfg := metrics.ConfigFromEnv(Version)
	var metricsHandler http.Handler
	var prov *metrics.Provider
	if mcfg.Enabled {
		prov = metrics.Init(mcfg)
		observability.Init(prov.Registerer(), true)
		if mcfg.Addr == "" {
			metricsHandler = prov.Handler()
		}
	} else {
		observability.Init(nil, false)
	}

	appLog.Info("starting api",
		"addr", cfg.Addr,
		"version", Version,
		"geoserver", cfg.GeoServerURL,
		"violations_file", cfg.ViolationsFile)

	src, err := newSource(cfg, appLog)
	if err != nil {
		appLog.Error("violations source setup failed", "err", err)
		return 1
	}

	models := artifacts.New(artifacts.Options{MaxItems: cfg.Cache.ModelMaxItems})
	responses := respcache.New(respcache.Options[*analytics.Payload]{
		MaxItems: cfg.Cache.ResponseMaxItems,
		Sizer:    analytics.PayloadSizer(),
	})
	svc := analytics.New(src, h3mapper.New(), models, responses, analytics.Options{
		FeatureVersion:  cfg.Cache.FeatureVersion,
		ResponseVersion: cfg.Cache.ResponseVersion,
		ModelTTL:        cfg.Cache.ModelTTL,
		ResponseTTL:     cfg.Cache.ResponseTTLFor,
		HistoryLimit:    cfg.HistoryLimit,
		Logger:          appLog.With("component", "analytics"),
	})

	limiter := ratelimit.New(ratelimit.Config{
		Limits:   cfg.RateLimit.Limits,
		Window:   cfg.RateLimit.Window,
		Disabled: cfg.RateLimit.Disabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reg prometheus.Registerer
	if prov != nil {
		reg = prov.Registerer()
	}
	runner := kafka.New(kafka.FromEnv(), svc, kafka.Options{
		Logger:   appLog.With("component", "invalidation"),
		Register: reg,
	})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("invalidation runner start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	go svc.RunCleanup(ctx, cfg.Cache.CleanupInterval)
	if prov != nil {
		go func() {
			if err := prov.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	err = server.Run(ctx, server.Deps{
		Config:   cfg,
		Logger:   appLog,
		Handlers: router.New(svc, limiter, appLog),
		Limiter:  limiter,
		Ready:    runner,
		Metrics:  metricsHandler,
	})
	if err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
