package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthmon/internal/config"
	"github.com/jandubois/healthmon/internal/monitor"
	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/registry"
	"github.com/jandubois/healthmon/internal/snapshot"
)

// stubProber answers 200 for "plex", 503 for "radarr" and fails "sonarr".
type stubProber struct {
	calls atomic.Int64
}

func (p *stubProber) Probe(_ context.Context, t registry.Target) probe.Result {
	p.calls.Add(1)
	now := time.Now()
	switch t.ID {
	case "plex":
		return probe.Completed(t.Name, 200, t.Accepts(200), 15*time.Millisecond, now)
	case "radarr":
		return probe.Completed(t.Name, 503, t.Accepts(503), 20*time.Millisecond, now)
	default:
		return probe.Offline(t.Name, probe.FaultTimeout, probe.ErrorTimeout, now)
	}
}

func testMonitor(t *testing.T, start bool) (*monitor.Monitor, *stubProber) {
	t.Helper()
	reg, err := registry.New([]registry.Target{
		{ID: "plex", Name: "Plex", Accepted: []int{200}},
		{ID: "radarr", Name: "Radarr", Accepted: []int{200}},
		{ID: "sonarr", Name: "Sonarr", Accepted: []int{200}},
	})
	require.NoError(t, err)

	p := &stubProber{}
	m := monitor.New(reg, p, snapshot.NewStore(), monitor.Options{Interval: time.Hour})
	if start {
		require.NoError(t, m.Start(context.Background()))
	}
	return m, p
}

func testServer(t *testing.T, cfg config.ServerConfig) (*Server, *stubProber) {
	t.Helper()
	m, p := testMonitor(t, true)
	return NewServer(m, &cfg, nil), p
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestHandleLiveness(t *testing.T) {
	s, _ := testServer(t, config.ServerConfig{})
	w := do(t, s.Handler(), "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestHandleAll(t *testing.T) {
	s, _ := testServer(t, config.ServerConfig{})

	for _, path := range []string{"/health/all", "/api/health/all"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, s.Handler(), "GET", path, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			body := decode(t, w)
			assert.Len(t, body, 3)

			plex := body["plex"].(map[string]any)
			assert.Equal(t, "online", plex["status"])
			assert.Equal(t, float64(200), plex["status_code"])
			assert.Equal(t, float64(15), plex["response_time_ms"])
			assert.Nil(t, plex["error"])
			assert.Equal(t, "Plex", plex["name"])
			_, err := time.Parse(time.RFC3339Nano, plex["last_checked"].(string))
			assert.NoError(t, err)

			radarr := body["radarr"].(map[string]any)
			assert.Equal(t, "degraded", radarr["status"])
			assert.Equal(t, float64(503), radarr["status_code"])

			sonarr := body["sonarr"].(map[string]any)
			assert.Equal(t, "offline", sonarr["status"])
			assert.Nil(t, sonarr["status_code"])
			assert.Nil(t, sonarr["response_time_ms"])
			assert.Equal(t, "timeout", sonarr["error"])
		})
	}
}

func TestHandleOne(t *testing.T) {
	s, _ := testServer(t, config.ServerConfig{})

	w := do(t, s.Handler(), "GET", "/health/radarr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "Radarr", body["name"])

	w = do(t, s.Handler(), "GET", "/api/health/sonarr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "offline", decode(t, w)["status"])
}

func TestHandleOneUnknown(t *testing.T) {
	s, _ := testServer(t, config.ServerConfig{})

	w := do(t, s.Handler(), "GET", "/health/lidarr", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Service not found"}`, w.Body.String())
}

func TestHandleBeforeFirstCycle(t *testing.T) {
	m, _ := testMonitor(t, false)
	s := NewServer(m, &config.ServerConfig{}, nil)

	w := do(t, s.Handler(), "GET", "/health/all", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = do(t, s.Handler(), "GET", "/health/plex", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, s.Handler(), "GET", "/health/lidarr", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown ids are judged by the registry")
}

func TestHandleCheck(t *testing.T) {
	s, p := testServer(t, config.ServerConfig{})
	before := p.calls.Load()

	w := do(t, s.Handler(), "GET", "/health/check", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Health check completed", body["message"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
	assert.NoError(t, err)
	assert.Len(t, body["services"], 3)
	assert.Equal(t, before+3, p.calls.Load(), "every target probed again")
}

func TestHandleCheckAuth(t *testing.T) {
	s, _ := testServer(t, config.ServerConfig{AuthToken: "secret"})
	h := s.Handler()

	w := do(t, h, "GET", "/health/check", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, "GET", "/health/check", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, "GET", "/health/check", map[string]string{"Authorization": "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "bearer scheme is required")

	w = do(t, h, "GET", "/health/check", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "GET", "/health/all", nil)
	assert.Equal(t, http.StatusOK, w.Code, "reads stay open")
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		s, _ := testServer(t, config.ServerConfig{CORSOrigins: []string{"*"}})
		w := do(t, s.Handler(), "GET", "/health/all", map[string]string{"Origin": "http://dash.local"})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origin", func(t *testing.T) {
		s, _ := testServer(t, config.ServerConfig{CORSOrigins: []string{"http://dash.local"}})
		w := do(t, s.Handler(), "GET", "/health/all", map[string]string{"Origin": "http://dash.local"})
		assert.Equal(t, "http://dash.local", w.Header().Get("Access-Control-Allow-Origin"))

		w = do(t, s.Handler(), "GET", "/health/all", map[string]string{"Origin": "http://evil.local"})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		s, _ := testServer(t, config.ServerConfig{CORSOrigins: []string{"*"}})
		w := do(t, s.Handler(), "OPTIONS", "/health/check", map[string]string{
			"Origin":                        "http://dash.local",
			"Access-Control-Request-Method": "GET",
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

func TestMetricsRoute(t *testing.T) {
	m, _ := testMonitor(t, true)

	s := NewServer(m, &config.ServerConfig{}, nil)
	w := do(t, s.Handler(), "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthmon_cycles_total 1\n"))
	})
	s = NewServer(m, &config.ServerConfig{}, metrics)
	w = do(t, s.Handler(), "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthmon_cycles_total")
}
