package poller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the poller's Prometheus collectors.
type Metrics struct {
	Polls        *prometheus.CounterVec
	PollDuration prometheus.Histogram
	Series       prometheus.Gauge
	LastSuccess  prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg. A nil reg skips
// registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rainchart_polls_total",
			Help: "Feed polls by outcome (applied, failed, stale, skipped)",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rainchart_poll_duration_seconds",
			Help:    "Duration of feed polls that reached the upstream",
			Buckets: prometheus.DefBuckets,
		}),
		Series: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rainchart_chart_series",
			Help: "Number of station series currently drawn",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rainchart_last_success_timestamp_seconds",
			Help: "Unix time of the last applied poll",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Polls, m.PollDuration, m.Series, m.LastSuccess)
	}
	return m
}
