package main

import (
	"log/slog"

	"github.com/achintya924/Traffic-lyt/internal/core/config"
	"github.com/achintya924/Traffic-lyt/internal/core/httpclient"
	"github.com/achintya924/Traffic-lyt/internal/violations"
)

// newSource prefers a local file so the api can run without GeoServer.
func newSource(cfg config.Config, log *slog.Logger) (violations.Source, error) {
	if cfg.ViolationsFile != "" {
		src, err := violations.LoadFile(cfg.ViolationsFile)
		if err != nil {
			return nil, err
		}
		log.Info("violations loaded from file", "path", cfg.ViolationsFile, "points", src.Len())
		return src, nil
	}
	return violations.NewWFSSource(violations.WFSOptions{
		GeoServerURL: cfg.GeoServerURL,
		Layer:        cfg.ViolationsLayer,
		Client:       httpclient.NewOutbound(cfg.UpstreamTimeout),
		Logger:       log.With("component", "wfs"),
	})
}
