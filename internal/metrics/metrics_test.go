package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthmon/internal/metrics"
	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

func TestObserve(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	start := time.Now()
	snap := &snapshot.Snapshot{
		Seq:         1,
		StartedAt:   start,
		CompletedAt: start.Add(250 * time.Millisecond),
		Results: map[string]probe.Result{
			"plex":   probe.Completed("Plex", 200, true, 40*time.Millisecond, start),
			"sonarr": probe.Offline("Sonarr", probe.FaultConnection, probe.ErrorConnectionFailure, start),
		},
	}
	require.NoError(t, m.Observe(context.Background(), nil, snap))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TargetStatus.WithLabelValues("plex", "online")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TargetStatus.WithLabelValues("plex", "offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TargetStatus.WithLabelValues("sonarr", "offline")))
	assert.InDelta(t, 0.04, testutil.ToFloat64(m.ResponseTime.WithLabelValues("plex")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ResponseTime), "offline target has no response time")
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestStatusFlips(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	now := time.Now()

	first := &snapshot.Snapshot{Seq: 1, StartedAt: now, CompletedAt: now, Results: map[string]probe.Result{
		"a": probe.Completed("A", 200, true, time.Millisecond, now),
	}}
	second := &snapshot.Snapshot{Seq: 2, StartedAt: now, CompletedAt: now, Results: map[string]probe.Result{
		"a": probe.Completed("A", 503, false, time.Millisecond, now),
	}}
	require.NoError(t, m.Observe(context.Background(), nil, first))
	require.NoError(t, m.Observe(context.Background(), first, second))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.TargetStatus.WithLabelValues("a", "online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TargetStatus.WithLabelValues("a", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbeResults.WithLabelValues("a", "online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbeResults.WithLabelValues("a", "degraded")))
}

func TestCycleFailedAndHandler(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.CycleFailed(errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleFailures))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "healthmon_cycle_failures_total 1")
}
