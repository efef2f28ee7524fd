// Package metrics exports monitor state as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

var statuses = []probe.Status{probe.StatusOnline, probe.StatusDegraded, probe.StatusOffline}

// Metrics contains the Prometheus collectors fed by committed snapshots.
type Metrics struct {
	TargetStatus   *prometheus.GaugeVec
	ResponseTime   *prometheus.GaugeVec
	ProbeResults   *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	CyclesTotal    prometheus.Counter
	CycleFailures  prometheus.Counter
	LastCommitTime prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TargetStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "healthmon_target_status",
				Help: "1 for the current status of each target, 0 otherwise",
			},
			[]string{"target", "status"},
		),
		ResponseTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "healthmon_target_response_time_seconds",
				Help: "Response time of the last probe that got an HTTP response",
			},
			[]string{"target"},
		),
		ProbeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthmon_probe_results_total",
				Help: "Total number of committed probe results",
			},
			[]string{"target", "status"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthmon_cycle_duration_seconds",
			Help:    "Wall time of committed check cycles",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthmon_cycles_total",
			Help: "Total number of committed check cycles",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthmon_cycle_failures_total",
			Help: "Total number of check cycles that failed before committing",
		}),
		LastCommitTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthmon_last_commit_timestamp_seconds",
			Help: "Unix time of the last committed snapshot",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.TargetStatus,
		m.ResponseTime,
		m.ProbeResults,
		m.CycleDuration,
		m.CyclesTotal,
		m.CycleFailures,
		m.LastCommitTime,
	)

	return m
}

// Name identifies the collector in logs.
func (m *Metrics) Name() string {
	return "metrics"
}

// Observe records a committed snapshot.
func (m *Metrics) Observe(_ context.Context, _, next *snapshot.Snapshot) error {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(next.CompletedAt.Sub(next.StartedAt).Seconds())
	m.LastCommitTime.Set(float64(next.CompletedAt.UnixNano()) / 1e9)

	for id, r := range next.Results {
		for _, s := range statuses {
			v := 0.0
			if r.Status == s {
				v = 1
			}
			m.TargetStatus.WithLabelValues(id, string(s)).Set(v)
		}
		m.ProbeResults.WithLabelValues(id, string(r.Status)).Inc()

		if r.ResponseTimeMs != nil {
			m.ResponseTime.WithLabelValues(id).Set(float64(*r.ResponseTimeMs) / 1000)
		} else {
			m.ResponseTime.DeleteLabelValues(id)
		}
	}
	return nil
}

// CycleFailed counts a cycle that did not commit.
func (m *Metrics) CycleFailed(error) {
	m.CycleFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
