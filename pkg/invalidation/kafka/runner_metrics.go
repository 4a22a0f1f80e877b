package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metricSet struct {
	msgs  *prometheus.CounterVec
	apply *prometheus.CounterVec
	proc  prometheus.Histogram
	lag   prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inval_msgs_total",
				Help: "Count of invalidation messages by result.",
			},
			[]string{"result"},
		),
		apply: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inval_entries_dropped_total",
				Help: "Cache entries dropped by invalidation events.",
			},
			[]string{"cache"},
		),
		proc: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inval_processing_seconds",
				Help:    "Processing time for one message.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
		),
		lag: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "inval_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
	}
	if r != nil {
		r.MustRegister(m.msgs, m.apply, m.proc, m.lag)
	}
	return m
}
